package sqlinline

// QSchema creates the ledger tables. It runs without arguments so pgx sends
// it over the simple protocol, which accepts several statements.
const QSchema = `--sql 0c3f6a8e-51d2-4b7a-9e0f-2a6d8c41b593
create table if not exists video_jobs (
  id                  text primary key,
  state               text not null default 'queued',
  provider_task_id    text not null default '',
  provider_result_url text not null default '',
  archived_file_id    text not null default '',
  failure_reason      text not null default '',
  archive_attempts    int  not null default 0,
  prompt              text not null default '',
  resolution          text not null default '480p',
  model               text not null default '',
  source_image_id     text not null default '',
  session_folder_id   text not null default '',
  created_at          timestamptz not null default now(),
  updated_at          timestamptz not null default now()
);
create index if not exists video_jobs_state_created_idx on video_jobs (state, created_at);
create table if not exists integration_tokens (
  id         uuid primary key default gen_random_uuid(),
  provider   text not null unique,
  token      text not null,
  properties jsonb not null default '{}'::jsonb,
  created_at timestamptz not null default now(),
  updated_at timestamptz not null default now()
);
`

const QListVideoJobs = `--sql 7d2b91c4-0e63-4f8a-b5d1-93c07a2e6f14
select
  id,
  state,
  provider_task_id,
  provider_result_url,
  archived_file_id,
  failure_reason,
  archive_attempts,
  prompt,
  resolution,
  model,
  source_image_id,
  session_folder_id,
  updated_at
from video_jobs
where cardinality($1::text[]) = 0 or state = any($1::text[])
order by created_at asc, id asc;
`

// QUpdateVideoJobState is a compare-and-swap on state. Null field arguments
// keep the stored value.
const QUpdateVideoJobState = `--sql b4e8f2a1-6c39-47d0-8a5e-1f27c9d3e08b
update video_jobs
set
  state               = $3::text,
  provider_task_id    = coalesce($4::text, provider_task_id),
  provider_result_url = coalesce($5::text, provider_result_url),
  archived_file_id    = coalesce($6::text, archived_file_id),
  failure_reason      = coalesce($7::text, failure_reason),
  archive_attempts    = coalesce($8::int, archive_attempts),
  updated_at          = now()
where id = $1::text
  and state = $2::text;
`

const QSelectVideoJobState = `--sql 3a91d7e5-c2f0-4b68-9d14-e6b0f83a27c1
select state
from video_jobs
where id = $1::text
limit 1;
`

// QUpsertVideoJob resets a finished or idle record to queued. In-flight
// records are left as they are.
const QUpsertVideoJob = `--sql e61c0b3d-9a74-4f25-b8e7-52d4a0f1c968
insert into video_jobs (
  id,
  state,
  prompt,
  resolution,
  model,
  source_image_id,
  session_folder_id,
  created_at,
  updated_at
) values (
  $1::text,
  'queued',
  $2::text,
  $3::text,
  $4::text,
  $5::text,
  $6::text,
  now(),
  now()
)
on conflict (id) do update set
  state               = 'queued',
  provider_task_id    = '',
  provider_result_url = '',
  archived_file_id    = '',
  failure_reason      = '',
  archive_attempts    = 0,
  prompt              = excluded.prompt,
  resolution          = excluded.resolution,
  model               = excluded.model,
  source_image_id     = excluded.source_image_id,
  session_folder_id   = excluded.session_folder_id,
  created_at          = now(),
  updated_at          = now()
where video_jobs.state not in ('processing', 'ready_url');
`

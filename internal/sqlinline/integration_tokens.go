package sqlinline

const QSelectIntegrationToken = `--sql 5b0e7c92-d1a4-4e3f-86b2-c97f1a04d3e8
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql a27f4d18-3e6b-4c05-9f81-6d2c8b7e0a45
insert into integration_tokens (provider, token, properties, created_at, updated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
  token      = excluded.token,
  properties = excluded.properties,
  updated_at = now();
`

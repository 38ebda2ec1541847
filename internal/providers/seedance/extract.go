package seedance

import (
	"strings"

	"golang.org/x/text/cases"

	"boothvideo/internal/domain"
)

// The task endpoint wraps its payload differently across API versions. Each
// list below is tried in order and the first path yielding a value wins.
var (
	payloadKeys = []string{"Result", "data"}

	statusPaths = [][]string{
		{"status"},
		{"Status"},
	}

	videoURLPaths = [][]string{
		{"content", "video_url"},
		{"content", "url"},
		{"output", "video_url"},
		{"result", "video_url"},
		{"video_url"},
	}

	failureReasonPaths = [][]string{
		{"error", "message"},
		{"message"},
		{"ResponseMetadata", "Error", "Message"},
	}

	taskIDPaths = [][]string{
		{"id"},
		{"Result", "id"},
		{"data", "id"},
	}

	notFoundCodePaths = [][]string{
		{"code"},
		{"error", "code"},
		{"ResponseMetadata", "Error", "Code"},
	}
)

const (
	defaultFailureReason = "video generation failed"
	missingURLReason     = "provider reported success without a video url"
	taskNotFoundCode     = "TaskNotFound"
)

// selectPayload returns the first nested object found under payloadKeys, or
// the document itself.
func selectPayload(doc map[string]any) map[string]any {
	for _, key := range payloadKeys {
		if nested, ok := doc[key].(map[string]any); ok {
			return nested
		}
	}
	return doc
}

func lookupString(doc map[string]any, path []string) string {
	var cur any = doc
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = obj[key]
		if !ok {
			return ""
		}
	}
	s, _ := cur.(string)
	return strings.TrimSpace(s)
}

func firstString(doc map[string]any, paths [][]string) string {
	for _, path := range paths {
		if v := lookupString(doc, path); v != "" {
			return v
		}
	}
	return ""
}

// foldStatus case-folds a provider status so "Succeeded" and "SUCCEEDED"
// compare equal. Casers are stateful, so one is built per call.
func foldStatus(raw string) string {
	return cases.Fold().String(strings.TrimSpace(raw))
}

func isTaskNotFound(doc map[string]any) bool {
	return firstString(doc, notFoundCodePaths) == taskNotFoundCode
}

// normalizeStatus turns a successful status document into a canonical status.
// Unknown or missing statuses read as Processing.
func normalizeStatus(doc map[string]any) domain.CanonicalStatus {
	payload := selectPayload(doc)
	switch foldStatus(firstString(payload, statusPaths)) {
	case "succeeded", "success":
		if url := firstString(payload, videoURLPaths); url != "" {
			return domain.Succeeded(url)
		}
		return domain.Failed(missingURLReason)
	case "failed", "error", "canceled", "cancelled", "expired":
		reason := firstString(payload, failureReasonPaths)
		if reason == "" {
			reason = defaultFailureReason
		}
		return domain.Failed(reason)
	default:
		return domain.Processing()
	}
}

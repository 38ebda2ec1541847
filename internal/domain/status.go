package domain

// StatusKind is the normalized outcome of a provider status query.
type StatusKind int

const (
	StatusProcessing StatusKind = iota
	StatusSucceeded
	StatusFailed
)

func (k StatusKind) String() string {
	switch k {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "processing"
	}
}

// CanonicalStatus is one of Processing, Succeeded(ResultURL) or Failed(Reason).
type CanonicalStatus struct {
	Kind      StatusKind
	ResultURL string
	Reason    string
}

func Processing() CanonicalStatus {
	return CanonicalStatus{Kind: StatusProcessing}
}

func Succeeded(url string) CanonicalStatus {
	return CanonicalStatus{Kind: StatusSucceeded, ResultURL: url}
}

func Failed(reason string) CanonicalStatus {
	return CanonicalStatus{Kind: StatusFailed, Reason: reason}
}

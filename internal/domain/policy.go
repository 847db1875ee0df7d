package domain

// SizeVerdict is the decision of the size policy engine for one file.
type SizeVerdict string

const (
	VerdictFits             SizeVerdict = "fits"
	VerdictNeedsCompression SizeVerdict = "needs_compression"
)

// SizePolicy decides whether a staged file fits the upload ceiling as-is or
// must be re-encoded. Unfixable is not a verdict here: it is the terminal
// state the transcoder reaches after exhausting its ladder.
type SizePolicy struct {
	CeilingBytes int64
}

// Classify applies the policy to one file. Images always fit: there is no
// transcoding path for images in this pipeline, they pass through unchanged.
func (p SizePolicy) Classify(file StagedFile) SizeVerdict {
	if file.MediaType != MediaVideo {
		return VerdictFits
	}
	if file.SizeBytes <= p.CeilingBytes {
		return VerdictFits
	}
	return VerdictNeedsCompression
}

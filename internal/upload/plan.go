// Package upload drives multipart uploads through backend-issued signed URLs.
package upload

// DefaultPartSize is the part size used when none is configured.
const DefaultPartSize int64 = 5 * 1024 * 1024

// Part is one fixed-size window [Start, End) of the source, numbered from 1.
type Part struct {
	Number int
	Start  int64
	End    int64
}

// Size returns the number of bytes in the part.
func (p Part) Size() int64 {
	return p.End - p.Start
}

// PlanParts splits size bytes into ceil(size/partSize) consecutive parts.
// Every part is partSize long except possibly the last.
func PlanParts(size, partSize int64) []Part {
	if size <= 0 || partSize <= 0 {
		return nil
	}

	parts := make([]Part, 0, (size+partSize-1)/partSize)
	for start, n := int64(0), 1; start < size; start, n = start+partSize, n+1 {
		parts = append(parts, Part{Number: n, Start: start, End: min(start+partSize, size)})
	}
	return parts
}

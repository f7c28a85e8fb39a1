package upload

// Strategy identifies how a file's bytes reach the object store.
type Strategy int

// Upload strategies.
const (
	StrategySingleShot Strategy = iota
	StrategyMultipart
)

// String ...
func (s Strategy) String() string {
	switch s {
	case StrategySingleShot:
		return "single-shot"
	case StrategyMultipart:
		return "multipart"
	default:
		return "unknown"
	}
}

// SelectStrategy picks the upload strategy for a file size. Files at or above
// the threshold use multipart; everything below goes out in a single PUT.
func SelectStrategy(sizeBytes, thresholdBytes int64) Strategy {
	if sizeBytes >= thresholdBytes {
		return StrategyMultipart
	}
	return StrategySingleShot
}

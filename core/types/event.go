package types

// Event represents a typed notification produced by a pool operation or a
// block transition. Height is the block at which it was produced.
type Event struct {
	Type       string            `json:"type"`
	Height     uint64            `json:"height"`
	Attributes map[string]string `json:"attributes"`
}

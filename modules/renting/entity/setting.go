package entity

// Setting is a single named cursor or flag persisted between sweeps, e.g. the
// last block height scanned for renting contract events.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

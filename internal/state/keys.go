package state

const DefaultKeyPrefix = "colorwar:"

type keys struct {
	prefix string
}

func (k keys) grid() string     { return k.prefix + "grid" }
func (k keys) gridSize() string { return k.prefix + "grid:size" }
func (k keys) counter() string  { return k.prefix + "placements" }

func (k keys) cooldown(actor string) string { return k.prefix + "cooldown:" + actor }

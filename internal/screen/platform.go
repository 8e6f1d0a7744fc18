package screen

// Platform bundles the OS-specific capture pieces.
type Platform struct {
	Factory Factory
	Locator Locator
	// Desktop is nil where the OS offers no last-resort hooks.
	Desktop Desktop
}

// Chain builds a capture chain over the platform's backends.
func (p Platform) Chain(cfg Config) *Chain {
	return NewChain(cfg, p.Factory, p.Locator, LastResort(p.Desktop))
}

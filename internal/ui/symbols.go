package ui

// Status symbols.
const (
	SymbolSuccess = "✓"
	SymbolFail    = "✗"
	SymbolOnline  = "●"
	SymbolOffline = "○"
	SymbolWaking  = "◐"
	SymbolUnknown = "–"
)

package styles

// Nerd Font icons for terminal output.
const (
	// Status indicators
	IconSuccess = "" // nf-fa-check (U+F00C)
	IconError   = "" // nf-fa-times (U+F00D)
	IconWarning = "" // nf-fa-exclamation_triangle (U+F071)
	IconInfo    = "" // nf-fa-info_circle (U+F05A)
	IconPending = "" // nf-fa-clock_o (U+F017)

	// Resources
	IconNetwork = "󰛳" // nf-md-lan (U+F06F3)
	IconVolume  = ""  // nf-fa-database (U+F1C0)

	IconBullet = "▸"
)

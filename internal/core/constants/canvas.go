package constants

import "time"

const (
	// Grid dimensions of the reference deployment
	GridWidth  = 64
	GridHeight = 64
	PixCount   = GridWidth * GridHeight

	// Aging
	FadeTick = 60 * time.Second

	// Burst detection and autosnapshot
	BurstWindow       = 30 * time.Second
	BurstThresholdPx  = 200
	AutosnapIdleAfter = 60 * time.Second
	AutosnapLabel     = "auto-burst"

	// Incremental sync
	EventLogCapacity = 2000

	// Lifespan mixture
	ShortMin  = 2 * time.Minute
	ShortMax  = 60 * time.Minute
	MediumMin = 4 * time.Hour
	MediumMax = 144 * time.Hour
	LongMin   = 6 * 24 * time.Hour
	LongMax   = 21 * 24 * time.Hour

	PShort  = 0.70
	PMedium = 0.25
	PLong   = 0.05

	MaxLingerFraction = 0.25
	MinFadeSeconds    = 30.0
	StrokeJitter      = 0.12
)

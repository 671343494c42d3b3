package engine

import (
	"strings"

	"github.com/teranos/regalsync/download"
	"github.com/teranos/regalsync/errors"
)

// Mode selects the batch strategy of a run
type Mode string

const (
	ModeInit     Mode = "INIT"
	ModeSync     Mode = "SYNC"
	ModeDownload Mode = "DWNL"
	ModeContinue Mode = "CONT"
	ModeUpdate   Mode = "UPDT"
	ModePIDList  Mode = "PIDL"
	ModeDelete   Mode = "DELE"
	ModeTest     Mode = "TEST"
)

var modes = []Mode{ModeInit, ModeSync, ModeDownload, ModeContinue, ModeUpdate, ModePIDList, ModeDelete, ModeTest}

// ParseMode accepts a mode name in any case
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range modes {
		if m == known {
			return m, nil
		}
	}
	err := errors.Newf("unknown mode %q", s)
	return "", errors.MarkFatal(errors.WithHintf(err, "valid modes: %s", ModeNames()))
}

// ModeNames lists every mode in documentation order, comma separated
func ModeNames() string {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

// Source says where a mode gets its candidates from
type Source int

const (
	SourceHarvest Source = iota
	SourceList
	SourceFixtures
)

// Plan is the fixed behaviour of a mode
type Plan struct {
	Source      Source
	FromScratch bool // harvest ignores the checkpoint
	Force       bool // download even when cached
}

var plans = map[Mode]Plan{
	ModeInit:     {Source: SourceHarvest, FromScratch: true, Force: true},
	ModeSync:     {Source: SourceHarvest, FromScratch: false, Force: true},
	ModeDownload: {Source: SourceHarvest, FromScratch: false, Force: true},
	ModeContinue: {Source: SourceHarvest, FromScratch: true, Force: false},
	ModeUpdate:   {Source: SourceHarvest, FromScratch: false, Force: false},
	ModePIDList:  {Source: SourceList, Force: false},
	ModeDelete:   {Source: SourceList},
	ModeTest:     {Source: SourceFixtures},
}

// Plan returns the behaviour table entry of m
func (m Mode) Plan() Plan {
	return plans[m]
}

func (m Mode) String() string { return string(m) }

// Action is what the engine does with one candidate
type Action string

const (
	ActionIngest   Action = "ingest"
	ActionUpdate   Action = "update"
	ActionReingest Action = "delete+ingest"
	ActionDownload Action = "download"
	ActionDelete   Action = "delete"
	ActionSkip     Action = "skip"
	ActionSelftest Action = "selftest"
)

// Decide maps a mode and the download signal of one candidate to an action
func Decide(m Mode, r download.Result) Action {
	switch m {
	case ModeInit, ModePIDList:
		return ActionIngest
	case ModeSync:
		if r.Updated {
			return ActionUpdate
		}
		return ActionIngest
	case ModeDownload:
		return ActionDownload
	case ModeContinue:
		if r.Downloaded && !r.Updated {
			return ActionIngest
		}
		return ActionSkip
	case ModeUpdate:
		return ActionReingest
	case ModeDelete:
		return ActionDelete
	case ModeTest:
		return ActionSelftest
	default:
		return ActionSkip
	}
}

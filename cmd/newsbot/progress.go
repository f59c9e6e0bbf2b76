package main

import (
	"fmt"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/newsbot/pkg/pipeline"
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("urls"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// stageProgress renders pipeline stages on the terminal: a bar while URLs
// are fetched and a spinner for every later stage.
type stageProgress struct {
	mu      sync.Mutex
	total   int
	fetch   *progressbar.ProgressBar
	spinner *progressbar.ProgressBar
}

func newStageProgress(total int) *stageProgress {
	return &stageProgress{total: total}
}

// Fetched advances the fetch bar. It is called by the scraper once per URL.
func (p *stageProgress) Fetched(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fetch != nil {
		p.fetch.Add(1)
	}
}

func (p *stageProgress) Stage(s pipeline.Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stop()
	switch s {
	case pipeline.StageFetching:
		p.fetch = getProgressBar(p.total, "📄 "+s.Status())
	case pipeline.StageIdle, pipeline.StagePersisted, pipeline.StageAnswered:
	default:
		p.spinner = getSpinner(s.Status())
	}
}

// Done clears whatever is still on screen.
func (p *stageProgress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stop()
}

func (p *stageProgress) stop() {
	if p.fetch != nil {
		p.fetch.Finish()
		p.fetch = nil
		fmt.Println()
	}
	if p.spinner != nil {
		p.spinner.Finish()
		p.spinner = nil
		fmt.Print("\r")
	}
}

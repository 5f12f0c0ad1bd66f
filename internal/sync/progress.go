package sync

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"

	"github.com/chmdznr/oss-project-sync/pkg/models"
	"github.com/chmdznr/oss-project-sync/pkg/utils"
)

// BarProgress renders a run as a terminal progress bar over projects and
// prints a summary when the run finishes.
type BarProgress struct {
	out io.Writer
	bar *pb.ProgressBar

	mu          sync.Mutex
	startTime   time.Time
	files       int64
	size        int64
	failedFiles int64
	byStatus    map[models.SyncStatus]int
	skipped     int
	errors      []string
}

// NewBarProgress creates a BarProgress writing to out.
func NewBarProgress(out io.Writer) *BarProgress {
	return &BarProgress{out: out, byStatus: make(map[models.SyncStatus]int)}
}

func (p *BarProgress) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startTime = time.Now()
	p.bar = pb.New(total)
	p.bar.SetWriter(p.out)
	p.bar.SetTemplate(`{{counters . }} projects {{bar . }} {{percent . }} | {{string . "files"}} files ({{string . "size"}}) {{etime . }}`)
	p.bar.Set("files", "0")
	p.bar.Set("size", utils.FormatSize(0))
	p.bar.Start()
}

func (p *BarProgress) Done(project models.Project, session *models.SyncSession, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case err != nil:
		p.skipped++
	case session != nil:
		p.byStatus[session.Status]++
		p.files += session.FilesCount
		p.size += session.TotalSizeSynced
		p.failedFiles += session.FailedFilesCount
		if session.ErrorMessage != "" {
			p.errors = append(p.errors, fmt.Sprintf("%s [%s]: %s", project.Name, session.Status, session.ErrorMessage))
		}
	}

	if p.bar != nil {
		p.bar.Set("files", fmt.Sprint(p.files))
		p.bar.Set("size", utils.FormatSize(p.size))
		p.bar.Increment()
	}
}

func (p *BarProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Finish()
	}

	fmt.Fprintf(p.out, "\nSync completed in %s:\n", utils.FormatDuration(time.Since(p.startTime)))
	fmt.Fprintf(p.out, "- Synced: %d files (%s)\n", p.files, utils.FormatSize(p.size))
	fmt.Fprintf(p.out, "- Failed files: %d\n", p.failedFiles)
	fmt.Fprintf(p.out, "- Sessions: %d success, %d warning, %d interrupted, %d error\n",
		p.byStatus[models.StatusSuccess],
		p.byStatus[models.StatusWarning],
		p.byStatus[models.StatusInterrupted],
		p.byStatus[models.StatusError])
	if p.skipped > 0 {
		fmt.Fprintf(p.out, "- Skipped (already running): %d\n", p.skipped)
	}
	for _, e := range p.errors {
		fmt.Fprintf(p.out, "  %s\n", e)
	}
}

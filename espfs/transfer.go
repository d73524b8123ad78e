package espfs

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// Action is what a plan step does.
type Action int

const (
	// ActionMkdir creates a destination directory.
	ActionMkdir Action = iota
	// ActionCopy copies a file.
	ActionCopy
	// ActionSkip leaves an existing file alone (quick mode, same size).
	ActionSkip
)

// String returns the progress label of the action.
func (a Action) String() string {
	switch a {
	case ActionMkdir:
		return "MKDIR"
	case ActionCopy:
		return "COPY"
	case ActionSkip:
		return "SKIP"
	default:
		return "UNKNOWN"
	}
}

// Step is one planned action.
type Step struct {
	Action      Action
	Source      string
	Destination string
	Size        int64
}

// TransferOptions controls planning.
type TransferOptions struct {
	// Contents copies the children of the source directory instead of the
	// directory itself.
	Contents bool

	// Overwrite allows replacing existing destination files.
	Overwrite bool

	// Quick skips files whose destination size equals the source size.
	// Content is never compared. It only applies once Overwrite allows
	// touching existing files.
	Quick bool

	// Label names copy steps in progress logs, e.g. "UPLOAD".
	Label string

	// Logger receives progress lines. Defaults to the logrus standard logger.
	Logger logrus.FieldLogger
}

// Plan is the complete list of steps of a transfer.
type Plan struct {
	Steps []Step

	label string
	log   logrus.FieldLogger
}

// Count returns the number of steps with the given action.
func (p *Plan) Count(action Action) int {
	n := 0
	for _, step := range p.Steps {
		if step.Action == action {
			n++
		}
	}
	return n
}

type planner struct {
	src, dst  Filesystem
	opts      TransferOptions
	steps     []Step
	conflicts []Conflict
}

// BuildPlan decides every step of copying source (on src) into the
// existing directory destination (on dst) without writing anything.
// Conflicts are all reported at once in *TransferAbortedError.
func BuildPlan(ctx context.Context, src Filesystem, source string, dst Filesystem, destination string, opts TransferOptions) (*Plan, error) {
	if opts.Label == "" {
		opts.Label = ActionCopy.String()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	target, err := dst.Stat(ctx, destination)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	if !target.IsDir {
		return nil, &PathError{Op: "transfer", Path: destination, Err: ErrNotADirectory}
	}

	origin, err := src.Stat(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}

	p := &planner{src: src, dst: dst, opts: opts}
	if opts.Contents {
		if !origin.IsDir {
			return nil, &PathError{Op: "transfer", Path: source, Err: ErrNotADirectory}
		}
		if err := p.children(ctx, source, destination, false); err != nil {
			return nil, err
		}
	} else {
		if err := p.item(ctx, source, origin, dst.Join(destination, src.Base(source)), false); err != nil {
			return nil, err
		}
	}

	if len(p.conflicts) > 0 {
		return nil, &TransferAbortedError{Conflicts: p.conflicts}
	}
	return &Plan{Steps: p.steps, label: opts.Label, log: opts.Logger}, nil
}

// item plans one source entry. absent is set when an ancestor of target is
// itself going to be created, so target cannot exist yet.
func (p *planner) item(ctx context.Context, source string, entry Entry, target string, absent bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var existing Entry
	exists := false
	if !absent {
		e, err := p.dst.Stat(ctx, target)
		switch {
		case err == nil:
			existing, exists = e, true
		case !IsNotFound(err):
			return err
		}
	}

	if entry.IsDir {
		if exists && !existing.IsDir {
			p.conflict(source, target, ErrNotADirectory)
			return nil
		}
		if !exists {
			p.steps = append(p.steps, Step{Action: ActionMkdir, Source: source, Destination: target})
		}
		return p.children(ctx, source, target, !exists)
	}

	switch {
	case exists && existing.IsDir:
		p.conflict(source, target, ErrIsADirectory)
	case exists && !p.opts.Overwrite:
		p.conflict(source, target, ErrAlreadyExists)
	case exists && p.opts.Quick && existing.Size == entry.Size:
		p.steps = append(p.steps, Step{Action: ActionSkip, Source: source, Destination: target, Size: entry.Size})
	default:
		p.steps = append(p.steps, Step{Action: ActionCopy, Source: source, Destination: target, Size: entry.Size})
	}
	return nil
}

// children plans the entries of a source directory in name order.
func (p *planner) children(ctx context.Context, source, target string, absent bool) error {
	entries, err := p.src.List(ctx, source)
	if err != nil {
		return err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	for _, entry := range entries {
		err := p.item(ctx, p.src.Join(source, entry.Name), entry, p.dst.Join(target, entry.Name), absent)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *planner) conflict(source, target string, err error) {
	p.conflicts = append(p.conflicts, Conflict{Source: source, Destination: target, Err: err})
}

// Execute creates every planned directory, then copies files in plan order.
// The first failure stops the transfer; completed steps are kept.
func (p *Plan) Execute(ctx context.Context, src, dst Filesystem) error {
	log := p.log
	if log == nil {
		log = logrus.StandardLogger()
	}

	for _, step := range p.Steps {
		if step.Action != ActionMkdir {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		log.WithField("path", step.Destination).Info(ActionMkdir.String())
		if err := dst.Mkdir(ctx, step.Destination); err != nil {
			return err
		}
	}

	for _, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch step.Action {
		case ActionSkip:
			log.WithField("path", step.Destination).Info(ActionSkip.String())
		case ActionCopy:
			log.WithFields(logrus.Fields{"path": step.Destination, "bytes": step.Size}).Info(p.label)
			data, err := src.ReadFile(ctx, step.Source)
			if err != nil {
				return err
			}
			if err := dst.WriteFile(ctx, step.Destination, data, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// Upload copies source from the host into the device directory destination.
func Upload(ctx context.Context, local Filesystem, source string, remote Filesystem, destination string, opts TransferOptions) error {
	opts.Label = "UPLOAD"
	plan, err := BuildPlan(ctx, local, source, remote, destination, opts)
	if err != nil {
		return err
	}
	return plan.Execute(ctx, local, remote)
}

// Download copies source from the device into the host directory destination.
func Download(ctx context.Context, remote Filesystem, source string, local Filesystem, destination string, opts TransferOptions) error {
	opts.Label = "DOWNLOAD"
	plan, err := BuildPlan(ctx, remote, source, local, destination, opts)
	if err != nil {
		return err
	}
	return plan.Execute(ctx, remote, local)
}

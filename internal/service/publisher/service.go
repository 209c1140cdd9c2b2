// Package publisher commits the data directory to the git working copy after
// a run and optionally pushes it upstream.
package publisher

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/serpwatch/serpwatch/internal/pkg/git"
)

type Options struct {
	RepoDir       string
	DataDir       string // staged path, relative to RepoDir
	Remote        string
	Branch        string
	AuthorName    string
	AuthorEmail   string
	MessagePrefix string
	Push          bool
}

type Service struct {
	opts Options
}

func New(opts Options) *Service {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	if opts.AuthorName == "" {
		opts.AuthorName = "serpwatch-bot"
	}
	if opts.AuthorEmail == "" {
		opts.AuthorEmail = "serpwatch-bot@users.noreply.github.com"
	}
	if opts.MessagePrefix == "" {
		opts.MessagePrefix = "Update keyword data"
	}
	return &Service{opts: opts}
}

// Publish stages the data directory and commits it with a dated message,
// returning the short commit hash. A run that changed nothing produces no
// commit and no error. A failed push is logged and swallowed so the data
// stays committed locally.
func (s *Service) Publish(ctx context.Context, now time.Time) (string, error) {
	if !git.IsRepo(s.opts.RepoDir) {
		return "", fmt.Errorf("%s is not a git repository", s.opts.RepoDir)
	}

	if err := git.Add(ctx, s.opts.RepoDir, s.opts.DataDir); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", s.opts.DataDir, err)
	}

	changed, err := git.HasStagedChanges(ctx, s.opts.RepoDir)
	if err != nil {
		return "", err
	}
	if !changed {
		klog.Warningf("no changes in %s, skipping commit", s.opts.DataDir)
		return "", nil
	}

	message := fmt.Sprintf("%s - %s", s.opts.MessagePrefix, now.Format("2006-01-02"))
	if err := git.Commit(ctx, s.opts.RepoDir, message, s.opts.AuthorName, s.opts.AuthorEmail); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}

	hash, err := git.ShortHead(s.opts.RepoDir)
	if err != nil {
		klog.Warningf("committed but could not resolve HEAD: %v", err)
		hash = ""
	}

	if s.opts.Push {
		if err := git.Push(ctx, s.opts.RepoDir, s.opts.Remote, s.opts.Branch); err != nil {
			klog.Warningf("push to %s/%s failed, commit %s stays local: %v",
				s.opts.Remote, s.opts.Branch, hash, err)
		}
	}

	return hash, nil
}

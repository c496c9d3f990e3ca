package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitFileProvider stores files in a git working tree and commits every change,
// giving each user's snapshot a full revision history.
type GitFileProvider struct {
	repoPath    string
	repo        *git.Repository
	authorName  string
	authorEmail string
	mu          sync.Mutex
}

// GitProviderOptions holds options for creating a GitFileProvider.
type GitProviderOptions struct {
	Path          string
	AuthorName    string
	AuthorEmail   string
	InitIfMissing bool
}

// NewGitFileProvider opens (or initialises) the repository at opts.Path.
func NewGitFileProvider(opts GitProviderOptions) (*GitFileProvider, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("repository path is required")
	}

	authorName := opts.AuthorName
	if authorName == "" {
		authorName = "companion-memory"
	}
	authorEmail := opts.AuthorEmail
	if authorEmail == "" {
		authorEmail = "companion-memory@localhost"
	}

	repo, err := git.PlainOpen(opts.Path)
	if err != nil {
		if !errors.Is(err, git.ErrRepositoryNotExists) || !opts.InitIfMissing {
			return nil, fmt.Errorf("failed to open git repository: %w", err)
		}
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create repository directory: %w", err)
		}
		repo, err = git.PlainInit(opts.Path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repository: %w", err)
		}
	}

	return &GitFileProvider{
		repoPath:    opts.Path,
		repo:        repo,
		authorName:  authorName,
		authorEmail: authorEmail,
	}, nil
}

func (p *GitFileProvider) fullPath(path string) string {
	return filepath.Join(p.repoPath, filepath.FromSlash(path))
}

// Read reads a file from the working tree.
func (p *GitFileProvider) Read(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(p.fullPath(path)) //nolint:gosec // G304: path is joined onto the trusted repoPath
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return data, err
}

// Write replaces the file and commits the change.
func (p *GitFileProvider) Write(_ context.Context, path string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := writeFileAtomic(p.fullPath(path), data); err != nil {
		return err
	}

	worktree, err := p.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := worktree.Add(path); err != nil {
		return fmt.Errorf("failed to stage file: %w", err)
	}
	return p.commit(worktree, fmt.Sprintf("snapshot: update %s", path))
}

// Exists checks if a file exists in the working tree.
func (p *GitFileProvider) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(p.fullPath(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Delete removes a file and commits the deletion.
func (p *GitFileProvider) Delete(_ context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := os.Stat(p.fullPath(path)); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	worktree, err := p.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := worktree.Remove(path); err != nil {
		// untracked file: remove it from disk without a commit
		if rmErr := os.Remove(p.fullPath(path)); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove file: %w", rmErr)
		}
		return nil
	}
	return p.commit(worktree, fmt.Sprintf("snapshot: delete %s", path))
}

// List returns files under prefix, skipping the .git directory.
func (p *GitFileProvider) List(_ context.Context, prefix string) ([]string, error) {
	return walkFiles(p.repoPath, prefix, map[string]bool{".git": true})
}

// History returns the commit messages touching path, newest first.
func (p *GitFileProvider) History(path string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	iter, err := p.repo.Log(&git.LogOptions{FileName: &path})
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	var messages []string
	err = iter.ForEach(func(c *object.Commit) error {
		messages = append(messages, c.Message)
		return nil
	})
	return messages, err
}

func (p *GitFileProvider) commit(worktree *git.Worktree, msg string) error {
	_, err := worktree.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  p.authorName,
			Email: p.authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

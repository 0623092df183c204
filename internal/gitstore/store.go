// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package gitstore is durable, history-tracked file storage on top of a git
// repository.
//
// # Working copy
//
// The store keeps one local working copy. With a remote configured it is
// cloned on first open and kept current with fast-forward pulls; without a
// remote the store is local only and never syncs.
//
// # Mutations
//
// Every operation that touches the working copy (pull, stage, commit, push)
// runs under a single mutation lock, so at most one commit is in flight per
// process. A push rejected by the remote is reported as ErrWriteConflict and
// the working copy is reset to the remote branch before the lock is released.
//
// # Versions
//
// The version of the store is the commit id at HEAD. An empty repository
// has the model.UndefinedCommit version.
package gitstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/confstore/internal/model"
)

const remoteName = "origin"

// Credentials authenticate against an http(s) remote.
type Credentials struct {
	Username string
	Password string
}

// Options configure a Store.
type Options struct {
	// RemoteURI is the remote to clone, pull from and push to. Blank means
	// local only.
	RemoteURI   string
	Branch      string
	Credentials Credentials

	// LocalPath is where the working copy lives.
	LocalPath string

	// MaxWait bounds lock acquisition and every network operation.
	MaxWait time.Duration

	AuthorName  string
	AuthorEmail string

	Logger *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Branch == "" {
		o.Branch = "main"
	}
	if o.MaxWait <= 0 {
		o.MaxWait = 30 * time.Second
	}
	if o.AuthorName == "" {
		o.AuthorName = "confstore"
	}
	if o.AuthorEmail == "" {
		o.AuthorEmail = "confstore@localhost"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Change is one staged mutation. A nil Content deletes the path.
type Change struct {
	Path    string
	Content *string

	// ExpectedHash, when set, is the content hash the path must have at the
	// pulled HEAD for the change to be applied. model.AbsentHash expects the
	// path not to exist.
	ExpectedHash *string
}

// Expecting returns a copy of c guarded by the expected content hash.
func (c Change) Expecting(hash string) Change {
	c.ExpectedHash = &hash
	return c
}

// Result describes an applied batch. Paths lists the repository paths the
// commit touched and is empty when the batch changed nothing.
type Result struct {
	Commit string
	Paths  []string
}

// WriteChange returns a change that writes content to p.
func WriteChange(p, content string) Change {
	return Change{Path: p, Content: &content}
}

// DeleteChange returns a change that removes p.
func DeleteChange(p string) Change {
	return Change{Path: p}
}

// IsDelete reports whether the change removes its path.
func (c Change) IsDelete() bool {
	return c.Content == nil
}

// Store is a git-backed versioned file store.
type Store struct {
	opts      Options
	repo      *git.Repository
	branchRef plumbing.ReferenceName
	auth      transport.AuthMethod
	lock      *mutationLock
	ll        *slog.Logger

	// beforePush runs between commit and push. Tests use it to let another
	// writer move the remote branch.
	beforePush func()
}

// Open establishes the local working copy. It clones when no local copy
// exists and fails with ErrStoreUnavailable if that clone fails.
func Open(ctx context.Context, opts Options) (*Store, error) {
	opts.applyDefaults()
	if opts.LocalPath == "" {
		return nil, errors.New("gitstore: local path is required")
	}

	s := &Store{
		opts:      opts,
		branchRef: plumbing.NewBranchReferenceName(opts.Branch),
		lock:      newMutationLock(opts.MaxWait),
		ll:        opts.Logger.With(slog.String("component", "gitstore"), slog.String("branch", opts.Branch)),
	}
	if opts.RemoteURI != "" && opts.Credentials.Username != "" {
		s.auth = &http.BasicAuth{
			Username: opts.Credentials.Username,
			Password: opts.Credentials.Password,
		}
	}

	start := time.Now()
	repo, err := s.openOrCreate(ctx)
	recordOp(ctx, "open", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	s.repo = repo

	s.ll.Info("Versioned store opened",
		slog.String("path", opts.LocalPath),
		slog.Bool("localOnly", s.LocalOnly()))
	return s, nil
}

const nodeIDFile = "confstore-node-id"

// NodeID returns the id kept in the repository metadata of the working
// copy, creating it with generate on first use. The id lives as long as the
// working copy does and is never shared by two working copies.
func (s *Store) NodeID(generate func() string) (string, error) {
	release, err := s.lock.acquire(context.Background())
	if err != nil {
		return "", err
	}
	defer release()

	p := filepath.Join(s.opts.LocalPath, git.GitDirName, nodeIDFile)
	data, err := os.ReadFile(p)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading node id: %w", err)
	}

	id := generate()
	if err := os.WriteFile(p, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("writing node id: %w", err)
	}
	return id, nil
}

// LocalOnly reports whether the store has no remote.
func (s *Store) LocalOnly() bool {
	return s.opts.RemoteURI == ""
}

func (s *Store) openOrCreate(ctx context.Context) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.opts.LocalPath)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrStoreUnavailable, s.opts.LocalPath, err)
	}

	if s.LocalOnly() {
		return s.initLocal()
	}

	cloneCtx, cancel := context.WithTimeout(ctx, s.opts.MaxWait)
	defer cancel()

	repo, err = git.PlainCloneContext(cloneCtx, s.opts.LocalPath, false, &git.CloneOptions{
		URL:           s.opts.RemoteURI,
		Auth:          s.auth,
		ReferenceName: s.branchRef,
		SingleBranch:  true,
	})
	if err == nil {
		return repo, nil
	}
	// The clone cleans up a directory it created or found empty. Anything
	// else at LocalPath belongs to the operator; only the repository
	// metadata the clone started is removed.
	_ = os.RemoveAll(filepath.Join(s.opts.LocalPath, git.GitDirName))

	if errors.Is(err, transport.ErrEmptyRemoteRepository) || isMissingRemoteBranch(err) {
		s.ll.Info("Remote has no commits on branch yet, starting from an empty working copy")
		repo, err := s.initLocal()
		if err != nil {
			return nil, err
		}
		if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{
			Name: remoteName,
			URLs: []string{s.opts.RemoteURI},
		}); err != nil {
			return nil, fmt.Errorf("%w: adding remote: %v", ErrStoreUnavailable, err)
		}
		return repo, nil
	}
	return nil, fmt.Errorf("%w: cloning %s: %v", ErrStoreUnavailable, s.opts.RemoteURI, err)
}

func (s *Store) initLocal() (*git.Repository, error) {
	if err := os.MkdirAll(s.opts.LocalPath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	repo, err := git.PlainInit(s.opts.LocalPath, false)
	if err != nil {
		return nil, fmt.Errorf("%w: init %s: %v", ErrStoreUnavailable, s.opts.LocalPath, err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, s.branchRef)); err != nil {
		return nil, fmt.Errorf("%w: setting HEAD: %v", ErrStoreUnavailable, err)
	}
	return repo, nil
}

// ReadAll pulls (best effort) and returns every tracked file at HEAD.
func (s *Store) ReadAll(ctx context.Context) (model.ConfigVersion, []model.Configuration, error) {
	return s.read(ctx, "read_all", nil)
}

// ReadPaths pulls (best effort) and returns the given paths as they are at
// HEAD. Paths that do not exist at HEAD are left out of the result.
func (s *Store) ReadPaths(ctx context.Context, paths []string) (model.ConfigVersion, []model.Configuration, error) {
	if paths == nil {
		paths = []string{}
	}
	return s.read(ctx, "read_paths", paths)
}

// Delta is the difference between an earlier commit and HEAD.
type Delta struct {
	Version model.ConfigVersion

	// Full means the earlier commit was unknown and Files holds the whole
	// tree at HEAD.
	Full bool

	Files   []model.Configuration
	Removed []string
}

// Empty reports whether the delta carries no changes.
func (d Delta) Empty() bool {
	return !d.Full && len(d.Files) == 0 && len(d.Removed) == 0
}

// ReadSince pulls (best effort) and returns what changed between since and
// HEAD. An undefined or unknown since yields a full read.
func (s *Store) ReadSince(ctx context.Context, since string) (d Delta, err error) {
	start := time.Now()
	defer func() { recordOp(ctx, "read_since", time.Since(start), err) }()

	release, err := s.lock.acquire(ctx)
	if err != nil {
		return Delta{}, err
	}
	defer release()

	if err := s.pull(ctx); err != nil {
		s.ll.Warn("Pull failed, diffing against local HEAD", slog.Any("error", err))
	}

	h, err := s.head()
	if err != nil {
		return Delta{}, err
	}
	d.Version = versionOf(h)
	if h.IsZero() {
		d.Full = since != model.UndefinedCommit && since != ""
		return d, nil
	}
	if since == h.String() {
		return d, nil
	}

	headTree, err := s.treeAt(h)
	if err != nil {
		return Delta{}, err
	}

	var sinceTree *object.Tree
	if since != "" && since != model.UndefinedCommit && plumbing.IsHash(since) {
		if t, err := s.treeAt(plumbing.NewHash(since)); err == nil {
			sinceTree = t
		}
	}
	if sinceTree == nil {
		d.Full = true
		d.Files, err = readTree(headTree)
		return d, err
	}

	changes, err := object.DiffTree(sinceTree, headTree)
	if err != nil {
		return Delta{}, fmt.Errorf("%w: diffing %s..%s: %v", ErrStoreUnavailable, since, h, err)
	}
	var present []string
	for _, c := range changes {
		switch {
		case c.To.Name != "":
			present = append(present, c.To.Name)
			if c.From.Name != "" && c.From.Name != c.To.Name {
				d.Removed = append(d.Removed, "/"+c.From.Name)
			}
		case c.From.Name != "":
			d.Removed = append(d.Removed, "/"+c.From.Name)
		}
	}
	d.Files, err = readTreePaths(headTree, present)
	if err != nil {
		return Delta{}, err
	}
	// A path that turned binary is gone from the configuration view.
	read := make(map[string]struct{}, len(d.Files))
	for _, f := range d.Files {
		read[f.Path] = struct{}{}
	}
	for _, p := range present {
		if _, ok := read["/"+p]; !ok {
			d.Removed = append(d.Removed, "/"+p)
		}
	}
	return d, nil
}

func (s *Store) treeAt(h plumbing.Hash) (*object.Tree, error) {
	commit, err := s.repo.CommitObject(h)
	if err != nil {
		return nil, fmt.Errorf("%w: reading commit %s: %v", ErrStoreUnavailable, h, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: reading tree of %s: %v", ErrStoreUnavailable, h, err)
	}
	return tree, nil
}

// Version returns the commit at HEAD without pulling.
func (s *Store) Version(ctx context.Context) (model.ConfigVersion, error) {
	release, err := s.lock.acquire(ctx)
	if err != nil {
		return model.UndefinedVersion(), err
	}
	defer release()

	h, err := s.head()
	if err != nil {
		return model.UndefinedVersion(), err
	}
	return versionOf(h), nil
}

func (s *Store) read(ctx context.Context, op string, paths []string) (ver model.ConfigVersion, files []model.Configuration, err error) {
	start := time.Now()
	defer func() { recordOp(ctx, op, time.Since(start), err) }()

	release, err := s.lock.acquire(ctx)
	if err != nil {
		return model.UndefinedVersion(), nil, err
	}
	defer release()

	if err := s.pull(ctx); err != nil {
		s.ll.Warn("Pull failed, serving local HEAD", slog.Any("error", err))
	}

	h, err := s.head()
	if err != nil {
		return model.UndefinedVersion(), nil, err
	}
	if h.IsZero() {
		return model.UndefinedVersion(), nil, nil
	}

	tree, err := s.treeAt(h)
	if err != nil {
		return model.UndefinedVersion(), nil, err
	}

	if paths == nil {
		files, err = readTree(tree)
	} else {
		files, err = readTreePaths(tree, paths)
	}
	if err != nil {
		return model.UndefinedVersion(), nil, err
	}
	return versionOf(h), files, nil
}

func readTree(tree *object.Tree) ([]model.Configuration, error) {
	var files []model.Configuration
	err := tree.Files().ForEach(func(f *object.File) error {
		content, ok, err := textContent(f)
		if err != nil || !ok {
			return err
		}
		files = append(files, model.NewConfiguration("/"+f.Name, content))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return files, nil
}

func readTreePaths(tree *object.Tree, paths []string) ([]model.Configuration, error) {
	files := make([]model.Configuration, 0, len(paths))
	for _, p := range paths {
		rel, err := relPath(p)
		if err != nil {
			return nil, err
		}
		f, err := tree.File(rel)
		if errors.Is(err, object.ErrFileNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrStoreUnavailable, rel, err)
		}
		content, ok, err := textContent(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if ok {
			files = append(files, model.NewConfiguration("/"+rel, content))
		}
	}
	return files, nil
}

// textContent returns the content of f. Binary files are not
// configuration and report false, whichever way the tree is read.
func textContent(f *object.File) (string, bool, error) {
	if binary, err := f.IsBinary(); err == nil && binary {
		return "", false, nil
	}
	content, err := f.Contents()
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", f.Name, err)
	}
	return content, true, nil
}

// Write stores content at p and returns the resulting commit id.
func (s *Store) Write(ctx context.Context, p, content string) (string, error) {
	res, err := s.Apply(ctx, []Change{WriteChange(p, content)})
	return res.Commit, err
}

// Delete removes p and returns the resulting commit id.
func (s *Store) Delete(ctx context.Context, p string) (string, error) {
	res, err := s.Apply(ctx, []Change{DeleteChange(p)})
	return res.Commit, err
}

// Apply stages all changes, commits them as one commit and pushes. When the
// changes leave the tree as it was, nothing is committed and the result
// carries the current HEAD and no paths. A failed ExpectedHash check
// rejects the whole batch with ErrWriteConflict.
func (s *Store) Apply(ctx context.Context, changes []Change) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "gitstore.Apply", trace.WithAttributes(attribute.Int("changes", len(changes))))
	start := time.Now()
	defer func() {
		recordOp(ctx, "apply", time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if len(changes) == 0 {
		return Result{}, errors.New("gitstore: no changes to apply")
	}
	rels := make([]string, len(changes))
	for i, c := range changes {
		rel, err := relPath(c.Path)
		if err != nil {
			return Result{}, err
		}
		rels[i] = rel
	}

	release, err := s.lock.acquire(ctx)
	if err != nil {
		return Result{}, err
	}
	defer release()

	if err := s.pull(ctx); err != nil {
		return Result{}, fmt.Errorf("%w: pull before commit: %v", ErrStoreUnavailable, err)
	}

	prev, err := s.head()
	if err != nil {
		return Result{}, err
	}
	if err := s.checkExpected(prev, rels, changes); err != nil {
		return Result{}, err
	}

	wt, err := s.repo.Worktree()
	if err != nil {
		return Result{}, fmt.Errorf("%w: worktree: %v", ErrStoreUnavailable, err)
	}

	for i, c := range changes {
		if err := stage(wt, rels[i], c); err != nil {
			s.discard(ctx, wt, prev)
			return Result{}, err
		}
	}

	status, err := wt.Status()
	if err != nil {
		s.discard(ctx, wt, prev)
		return Result{}, fmt.Errorf("%w: status: %v", ErrStoreUnavailable, err)
	}
	if status.IsClean() {
		s.ll.Debug("Changes did not modify the tree, skipping commit", slog.Int("changes", len(changes)))
		return Result{Commit: versionOf(prev).MainVersion()}, nil
	}

	var touched []string
	for _, rel := range rels {
		if fs, ok := status[rel]; ok && fs.Staging != git.Unmodified {
			touched = append(touched, "/"+rel)
		}
	}

	h, err := wt.Commit(commitMessage(rels, changes), &git.CommitOptions{
		Author: &object.Signature{
			Name:  s.opts.AuthorName,
			Email: s.opts.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		s.discard(ctx, wt, prev)
		return Result{}, fmt.Errorf("%w: commit: %v", ErrStoreUnavailable, err)
	}

	if !s.LocalOnly() {
		if s.beforePush != nil {
			s.beforePush()
		}
		if err := s.push(ctx); err != nil {
			s.discard(ctx, wt, prev)
			if isPushRejected(err) {
				return Result{}, fmt.Errorf("%w: %v", ErrWriteConflict, err)
			}
			return Result{}, fmt.Errorf("%w: push: %v", ErrStoreUnavailable, err)
		}
	}

	s.ll.Info("Committed configuration change",
		slog.String("commit", h.String()),
		slog.Int("files", len(touched)))
	span.SetAttributes(attribute.String("commit", h.String()))
	return Result{Commit: h.String(), Paths: touched}, nil
}

func (s *Store) checkExpected(head plumbing.Hash, rels []string, changes []Change) error {
	var tree *object.Tree
	for i, c := range changes {
		if c.ExpectedHash == nil {
			continue
		}
		current := model.AbsentHash
		if !head.IsZero() {
			if tree == nil {
				t, err := s.treeAt(head)
				if err != nil {
					return err
				}
				tree = t
			}
			f, err := tree.File(rels[i])
			switch {
			case errors.Is(err, object.ErrFileNotFound):
			case err != nil:
				return fmt.Errorf("%w: reading %s: %v", ErrStoreUnavailable, rels[i], err)
			default:
				content, err := f.Contents()
				if err != nil {
					return fmt.Errorf("%w: reading %s: %v", ErrStoreUnavailable, rels[i], err)
				}
				current = model.ContentHash(content)
			}
		}
		if current != *c.ExpectedHash {
			return fmt.Errorf("%w: %s changed at %s", ErrWriteConflict, rels[i], versionOf(head))
		}
	}
	return nil
}

func stage(wt *git.Worktree, rel string, c Change) error {
	if c.IsDelete() {
		if _, err := wt.Filesystem.Stat(rel); os.IsNotExist(err) {
			return nil
		}
		if _, err := wt.Remove(rel); err != nil {
			return fmt.Errorf("%w: removing %s: %v", ErrStoreUnavailable, rel, err)
		}
		return nil
	}
	if err := util.WriteFile(wt.Filesystem, rel, []byte(*c.Content), 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrStoreUnavailable, rel, err)
	}
	if _, err := wt.Add(rel); err != nil {
		return fmt.Errorf("%w: staging %s: %v", ErrStoreUnavailable, rel, err)
	}
	return nil
}

func commitMessage(rels []string, changes []Change) string {
	if len(changes) == 1 {
		verb := "update"
		if changes[0].IsDelete() {
			verb = "delete"
		}
		return fmt.Sprintf("confstore: %s %s", verb, rels[0])
	}
	return fmt.Sprintf("confstore: update %d files\n\n%s", len(changes), strings.Join(rels, "\n"))
}

// pull fast-forwards the working copy. A diverged working copy is reset to
// the remote branch.
func (s *Store) pull(ctx context.Context) error {
	if s.LocalOnly() {
		return nil
	}
	pullCtx, cancel := context.WithTimeout(ctx, s.opts.MaxWait)
	defer cancel()

	wt, err := s.repo.Worktree()
	if err != nil {
		return err
	}
	err = wt.PullContext(pullCtx, &git.PullOptions{
		RemoteName:    remoteName,
		ReferenceName: s.branchRef,
		SingleBranch:  true,
		Auth:          s.auth,
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case errors.Is(err, transport.ErrEmptyRemoteRepository), isMissingRemoteBranch(err):
		return nil
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		s.ll.Warn("Working copy diverged from remote, resetting")
		return s.resetToRemote(pullCtx, wt)
	default:
		return err
	}
}

func (s *Store) push(ctx context.Context) error {
	pushCtx, cancel := context.WithTimeout(ctx, s.opts.MaxWait)
	defer cancel()

	spec := gitconfig.RefSpec(fmt.Sprintf("%s:%s", s.branchRef, s.branchRef))
	err := s.repo.PushContext(pushCtx, &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{spec},
		Auth:       s.auth,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

func (s *Store) resetToRemote(ctx context.Context, wt *git.Worktree) error {
	remoteRef := plumbing.NewRemoteReferenceName(remoteName, s.opts.Branch)
	spec := gitconfig.RefSpec(fmt.Sprintf("+%s:%s", s.branchRef, remoteRef))
	err := s.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{spec},
		Auth:       s.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch: %w", err)
	}
	ref, err := s.repo.Reference(remoteRef, true)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", remoteRef, err)
	}
	return wt.Reset(&git.ResetOptions{Commit: ref.Hash(), Mode: git.HardReset})
}

// discard drops staged or committed but unpublished work so the next
// mutation starts from a clean working copy.
func (s *Store) discard(ctx context.Context, wt *git.Worktree, prev plumbing.Hash) {
	if !s.LocalOnly() {
		resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.MaxWait)
		defer cancel()
		err := s.resetToRemote(resetCtx, wt)
		if err == nil {
			return
		}
		s.ll.Warn("Reset to remote failed, falling back to previous HEAD", slog.Any("error", err))
	}
	if prev.IsZero() {
		return
	}
	if err := wt.Reset(&git.ResetOptions{Commit: prev, Mode: git.HardReset}); err != nil {
		s.ll.Error("Failed to reset working copy", slog.String("commit", prev.String()), slog.Any("error", err))
	}
}

// head returns the commit at HEAD, or the zero hash for an unborn branch.
func (s *Store) head() (plumbing.Hash, error) {
	ref, err := s.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, nil
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: resolving HEAD: %v", ErrStoreUnavailable, err)
	}
	return ref.Hash(), nil
}

func versionOf(h plumbing.Hash) model.ConfigVersion {
	if h.IsZero() {
		return model.UndefinedVersion()
	}
	return model.NewConfigVersion(h.String())
}

func isMissingRemoteBranch(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return true
	}
	return strings.Contains(err.Error(), "couldn't find remote ref")
}

// relPath turns a store path into a clean path relative to the repository
// root.
func relPath(p string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(strings.TrimSpace(p)))
	rel := strings.TrimPrefix(clean, "/")
	if rel == "" || rel == "." {
		return "", fmt.Errorf("gitstore: invalid path %q", p)
	}
	if rel == ".git" || strings.HasPrefix(rel, ".git/") {
		return "", fmt.Errorf("gitstore: path %q is reserved", p)
	}
	return rel, nil
}

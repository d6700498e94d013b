package main

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ferry/internal/checksum"
	"github.com/bamsammich/ferry/internal/errdefs"
	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/filter"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/session"
	"github.com/bamsammich/ferry/internal/stats"
	"github.com/bamsammich/ferry/internal/transfer"
	"github.com/bamsammich/ferry/internal/worker"
)

func newGetCmd(a *app) *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "get REMOTE [LOCAL]",
		Short: "Download a file or directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, src, err := a.open(ctx, args[0])
			if err != nil {
				return err
			}
			if src.IsDirectory() && !recursive {
				return fmt.Errorf("%s is a directory (use -r)", src)
			}
			dst := "."
			if len(args) == 2 {
				dst = args[1]
			}
			if info, err := os.Stat(dst); err == nil && info.IsDir() && !src.IsRoot() {
				dst = filepath.Join(dst, src.Name())
			}
			read := session.Feature[feature.Read](s, feature.ReadKey, nil)
			if read == nil {
				return unsupported("read", s)
			}
			list := session.Feature[feature.List](s, feature.ListKey, nil)

			return a.track(src.Abs(), func(events chan<- event.Event, c *stats.Collector) error {
				pool := worker.NewPool(a.prefs.Workers)
				opts := a.transferOptions(c)
				err := walkRemote(ctx, list, src, dst, func(p *remote.Path, target string) error {
					if p.IsDirectory() {
						if err := os.MkdirAll(target, 0o755); err != nil {
							return err
						}
						event.Emit(events, event.Event{Type: event.DirCreated, Path: p.Abs()})
						return nil
					}
					c.AddBytesTotal(p.Attributes().Size)
					status := transfer.NewStatus()
					status.Checksum = p.Attributes().Checksum
					worker.Submit[int64](ctx, pool, &worker.Download{
						Source:  p,
						Target:  target,
						Reader:  read,
						Status:  status,
						Options: opts,
						Events:  events,
					}, worker.WithEvents(events), worker.WithLogger(a.logger))
					return nil
				})
				pool.Wait()
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "download directories recursively")
	return cmd
}

// walkRemote visits p and, for directories, everything beneath it, pairing
// each entry with its local target. Parents are visited before children.
func walkRemote(ctx context.Context, list feature.List, p *remote.Path, target string,
	visit func(p *remote.Path, target string) error,
) error {
	if err := worker.Checkpoint(ctx); err != nil {
		return err
	}
	if err := visit(p, target); err != nil {
		return err
	}
	if !p.IsDirectory() {
		return nil
	}
	if list == nil {
		return fmt.Errorf("list %s: %w", p, errdefs.ErrUnsupported)
	}
	children, err := list.List(ctx, p, nil)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := walkRemote(ctx, list, child, filepath.Join(target, child.Name()), visit); err != nil {
			return err
		}
	}
	return nil
}

// upload is one planned step of put: a directory to create or a file to
// send.
type upload struct {
	source string
	target *remote.Path
	size   int64
}

func newPutCmd(a *app) *cobra.Command {
	var (
		recursive    bool
		verify       bool
		storageClass string
	)
	cmd := &cobra.Command{
		Use:   "put LOCAL... REMOTE",
		Short: "Upload files or directories",
		Long: `Upload files or directories. Files matching queue.upload.skip are left
out. With --checksum the local file is hashed first and the upload only
commits when the transmitted bytes and the server's reply match that digest.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sources := args[:len(args)-1]
			s, dst, err := a.open(ctx, args[len(args)-1])
			if err != nil {
				return err
			}
			skip, err := a.prefs.SkipFilter()
			if err != nil {
				return err
			}
			plan, err := planUpload(sources, dst, recursive, skip)
			if err != nil {
				return err
			}

			return a.track(dst.Abs(), func(events chan<- event.Event, c *stats.Collector) error {
				var total int64
				for _, u := range plan {
					if u.source == "" {
						event.Emit(events, event.Event{Type: event.FileSkipped, Path: u.target.Abs()})
					}
					total += u.size
				}
				c.AddBytesTotal(total)

				target, err := a.accelerate(ctx, s, dst, total)
				if err != nil {
					return err
				}
				write := session.Feature[feature.Write](target, feature.WriteKey, nil)
				if write == nil {
					return unsupported("write", target)
				}
				mkdir := session.Feature[feature.Directory](target, feature.DirectoryKey, nil)

				pool := worker.NewPool(a.prefs.Workers)
				opts := a.transferOptions(c)
				for _, u := range plan {
					switch {
					case u.source == "":
						continue
					case u.target.IsDirectory():
						if mkdir == nil {
							pool.Wait()
							return unsupported("mkdir", target)
						}
						if _, err := mkdir.Mkdir(ctx, u.target, transfer.NewStatus()); err != nil {
							pool.Wait()
							return err
						}
						event.Emit(events, event.Event{Type: event.DirCreated, Path: u.target.Abs()})
						continue
					}
					status, err := uploadStatus(u, verify, a.prefs.ChecksumAlgorithm, storageClass)
					if err != nil {
						event.Emit(events, event.Event{Type: event.FileFailed, Path: u.target.Abs(), Error: err})
						continue
					}
					worker.Submit[transfer.Reply](ctx, pool, &worker.Upload{
						Source:  u.source,
						Target:  u.target,
						Writer:  write,
						Status:  status,
						Options: opts,
						Events:  events,
					}, worker.WithEvents(events), worker.WithLogger(a.logger))
				}
				pool.Wait()
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "upload directories recursively")
	cmd.Flags().BoolVar(&verify, "checksum", false, "hash files before upload and verify against it")
	cmd.Flags().StringVar(&storageClass, "storage-class", "", "storage class for uploaded objects")
	return cmd
}

// planUpload lists the steps of a put. A single file sent to a path that
// is not a directory keeps the remote name; everything else lands inside
// dst. Skipped files are planned with an empty source.
func planUpload(sources []string, dst *remote.Path, recursive bool, skip *filter.Chain) ([]upload, error) {
	into := dst.IsDirectory() || len(sources) > 1
	var plan []upload
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			target := dst
			if into {
				target = remote.New(dst, filepath.Base(src), remote.File)
			}
			if !skip.Match(filepath.Base(src), false, info.Size()) {
				plan = append(plan, upload{target: target})
				continue
			}
			plan = append(plan, upload{source: src, target: target, size: info.Size()})
			continue
		}
		if !recursive {
			return nil, fmt.Errorf("%s is a directory (use -r)", src)
		}

		top := remote.Parse(dst.Abs(), remote.Directory)
		if into {
			top = remote.New(dst, filepath.Base(src), remote.Directory)
		}
		dirs := map[string]*remote.Path{".": top}
		err = filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(src, p)
			if err != nil {
				return err
			}
			if rel == "." {
				plan = append(plan, upload{source: p, target: top})
				return nil
			}
			parent := dirs[filepath.Dir(rel)]
			slashed := filepath.ToSlash(rel)
			if d.IsDir() {
				target := remote.New(parent, d.Name(), remote.Directory)
				if !skip.Match(slashed, true, 0) {
					plan = append(plan, upload{target: target})
					return filepath.SkipDir
				}
				dirs[rel] = target
				plan = append(plan, upload{source: p, target: target})
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			target := remote.New(parent, d.Name(), remote.File)
			if !skip.Match(slashed, false, info.Size()) {
				plan = append(plan, upload{target: target})
				return nil
			}
			plan = append(plan, upload{source: p, target: target, size: info.Size()})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return plan, nil
}

func uploadStatus(u upload, verify bool, alg checksum.Algorithm, storageClass string) (*transfer.Status, error) {
	status := transfer.NewStatus()
	status.Length = u.size
	status.MimeType = mime.TypeByExtension(filepath.Ext(u.source))
	status.StorageClass = storageClass
	if !verify {
		return status, nil
	}
	f, err := os.Open(u.source)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	status.Checksum, err = checksum.Compute(alg, f)
	if err != nil {
		return nil, fmt.Errorf("checksum %s: %w", u.source, err)
	}
	return status, nil
}

// accelerate asks the backend whether an upload of total bytes to dst
// should use an accelerated endpoint, and returns the session to write
// through.
func (a *app) accelerate(ctx context.Context, s *session.Session, dst *remote.Path, total int64) (*session.Session, error) {
	accel := session.Feature[feature.TransferAcceleration](s, feature.TransferAccelerationKey, nil)
	if accel == nil || dst.Volume() == nil {
		return s, nil
	}
	status := transfer.NewStatus()
	status.Length = total
	on, err := accel.Prompt(ctx, s.Host(), dst, status, a.confirm)
	if err != nil {
		a.logger.Debug("acceleration unavailable", "path", dst.Abs(), "error", err)
		return s, nil
	}
	if !on {
		return s, nil
	}
	h, err := accel.Open(ctx, s.Host(), dst)
	if err != nil {
		return nil, err
	}
	a.logger.Info("using accelerated endpoint", "host", h.Hostname)
	return a.session(ctx, h)
}

// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/edo-build/edo/lib/addr"
	"github.com/edo-build/edo/lib/artifact"
	"github.com/edo-build/edo/lib/environment"
	"github.com/edo-build/edo/lib/source"
)

// SourceMount names one of the transform's declared sources and where
// it is staged inside the environment.
type SourceMount struct {
	Source string
	Path   string
}

// DependencyMount names one of the transform's dependencies and where
// its produced artifact is staged inside the environment.
type DependencyMount struct {
	Addr addr.Addr
	Path string
}

// CommandTransform is the ordinary realization of Transform: stage
// every declared source and dependency artifact into an environment,
// run a fixed shell script, and package one path as the output
// artifact's single layer. It is the config-evaluator's workhorse the
// way environment.Command is lib/environment's: most configured build
// steps are exactly this shape, with the variation entirely in what
// gets staged and what script runs.
type CommandTransform struct {
	Addr      addr.Addr
	FarmAddr  addr.Addr
	DependsOn []addr.Addr
	Sources   []SourceMount
	Mounts    []DependencyMount

	// Env is set on the environment via SetEnv before Script runs.
	Env map[string]string
	// Interpreter overrides the Command's default "bash" shebang.
	Interpreter string
	// Script is run as a sequence of Command.Run lines.
	Script []string
	// WorkDir is the path inside the environment the script runs at.
	WorkDir string

	// OutputPath is read from the environment after a successful run
	// and packaged as the resulting artifact's single layer.
	OutputPath string
	// OutputName seeds the resulting Id.Name; if empty, the
	// transform's own address's final segment is sanitized and used
	// instead.
	OutputName string
	// OutputMediaType is the media type the output layer is finished
	// with. The zero value (KindManifest) is never a valid choice for
	// a real layer, so it is treated as "unset" and defaults to
	// Tar(CompressionZstd).
	OutputMediaType artifact.MediaType
	// Provides lists the capability names this transform's output
	// satisfies, carried into the artifact's Config.
	Provides []string

	// RetryableOnFailure reports Retryable instead of Failed when the
	// script fails to run or exits unsuccessfully. Staging errors come
	// from Stage as plain errors and are not affected by this flag.
	RetryableOnFailure bool
}

var _ Transform = (*CommandTransform)(nil)

// Environment names the farm this transform runs under.
func (t *CommandTransform) Environment() addr.Addr { return t.FarmAddr }

// Depends lists the transforms that must reach Success first.
func (t *CommandTransform) Depends() []addr.Addr { return t.DependsOn }

// UniqueId hashes everything that determines this transform's output
// without running anything: its own address and farm, the sorted
// unique_id of every named source, the sorted UniqueId of every
// dependency (via DependencyIds), the script, work directory, output
// path, environment variables, and declared capabilities. Mirrors
// source.GitSource.UniqueId's normalized-inputs-over-content approach:
// the Id this returns is the same one a later Transform call's
// produced artifact carries (via artifact.NewExternal), so a build-tier
// cache hit on this Id is valid without re-running anything.
func (t *CommandTransform) UniqueId(ctx context.Context, h *Handle) (artifact.Id, error) {
	depIds, err := DependencyIds(ctx, h, t.DependsOn)
	if err != nil {
		return artifact.Id{}, err
	}
	depPairs := make([]string, 0, len(depIds))
	for i, id := range depIds {
		depPairs = append(depPairs, t.DependsOn[i].String()+"="+id.String())
	}
	sort.Strings(depPairs)

	sourceNames := make([]string, 0, len(t.Sources))
	for _, m := range t.Sources {
		sourceNames = append(sourceNames, m.Source)
	}
	sort.Strings(sourceNames)
	sourcePairs := make([]string, 0, len(sourceNames))
	for _, name := range sourceNames {
		src, ok := h.Source(name)
		if !ok {
			return artifact.Id{}, fmt.Errorf("transform: %s: source %q is not registered", t.Addr, name)
		}
		sourcePairs = append(sourcePairs, name+"="+src.UniqueId().String())
	}

	envKeys := make([]string, 0, len(t.Env))
	for k := range t.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	envPairs := make([]string, 0, len(envKeys))
	for _, k := range envKeys {
		envPairs = append(envPairs, k+"="+t.Env[k])
	}

	provides := append([]string(nil), t.Provides...)
	sort.Strings(provides)

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "addr", t.Addr)
	fmt.Fprintln(&buf, "farm", t.FarmAddr)
	fmt.Fprintln(&buf, "workdir", t.WorkDir)
	fmt.Fprintln(&buf, "output", t.OutputPath)
	fmt.Fprintln(&buf, "interpreter", t.Interpreter)
	fmt.Fprintln(&buf, "script", strings.Join(t.Script, "\n"))
	fmt.Fprintln(&buf, "sources", strings.Join(sourcePairs, ","))
	fmt.Fprintln(&buf, "deps", strings.Join(depPairs, ","))
	fmt.Fprintln(&buf, "env", strings.Join(envPairs, ","))
	fmt.Fprintln(&buf, "provides", strings.Join(provides, ","))

	digest := artifact.FormatHash(artifact.HashConfig(buf.Bytes()))
	return artifact.NewId(t.outputName(), "", "", "", digest)
}

// outputName derives the Id.Name to use: OutputName if set, otherwise
// the transform's own address's final segment sanitized against
// Id.Name's reserved characters.
func (t *CommandTransform) outputName() string {
	if t.OutputName != "" {
		return sanitizeIdName(t.OutputName)
	}
	segments := t.Addr.Segments()
	if len(segments) == 0 {
		return "transform"
	}
	return sanitizeIdName(segments[len(segments)-1])
}

// sanitizeIdName replaces every character artifact.Id.Name forbids
// with an underscore. Addr segments commonly contain hyphens, which
// Id.Name treats as a reserved field separator.
func sanitizeIdName(raw string) string {
	out := strings.Map(func(r rune) rune {
		if strings.ContainsRune("@:.-/", r) {
			return '_'
		}
		return r
	}, raw)
	if out == "" {
		return "transform"
	}
	return out
}

// Prepare fetches every named source (via source.Cache) and, for each
// dependency, best-effort syncs its artifact down from the build tier
// if one is configured. A dependency not yet present in the build tier
// is not an error here: by the time Stage runs, the scheduler has
// already waited for that dependency's own Success, which leaves its
// artifact in local storage regardless of whether a shared build tier
// ever saw it.
func (t *CommandTransform) Prepare(ctx context.Context, log Logger, h *Handle) error {
	for _, m := range t.Sources {
		src, ok := h.Source(m.Source)
		if !ok {
			return fmt.Errorf("transform: %s: source %q is not registered", t.Addr, m.Source)
		}
		if _, err := source.Cache(ctx, log, h.Storage, src); err != nil {
			return fmt.Errorf("transform: %s: preparing source %q: %w", t.Addr, m.Source, err)
		}
	}

	depIds, err := DependencyIds(ctx, h, t.DependsOn)
	if err != nil {
		return err
	}
	for i, id := range depIds {
		if _, _, err := h.Storage.FindBuild(ctx, id, true); err != nil {
			return fmt.Errorf("transform: %s: preparing dependency %s: %w", t.Addr, t.DependsOn[i], err)
		}
	}
	return nil
}

// Stage hydrates env with every declared source and dependency mount.
func (t *CommandTransform) Stage(ctx context.Context, log Logger, h *Handle, env environment.Environment) error {
	for _, m := range t.Sources {
		src, ok := h.Source(m.Source)
		if !ok {
			return fmt.Errorf("transform: %s: source %q is not registered", t.Addr, m.Source)
		}
		if err := src.Stage(ctx, log, h.Storage, env, m.Path); err != nil {
			return fmt.Errorf("transform: %s: staging source %q: %w", t.Addr, m.Source, err)
		}
	}

	for _, m := range t.Mounts {
		dep, ok := h.Transforms.Get(m.Addr)
		if !ok {
			return fmt.Errorf("transform: %s: dependency %s is not registered", t.Addr, m.Addr)
		}
		id, err := dep.UniqueId(ctx, h)
		if err != nil {
			return fmt.Errorf("transform: %s: resolving dependency %s: %w", t.Addr, m.Addr, err)
		}
		a, err := h.Storage.SafeOpen(ctx, id)
		if err != nil {
			return fmt.Errorf("transform: %s: opening dependency %s: %w", t.Addr, m.Addr, err)
		}
		if err := stageArtifact(ctx, h, env, a, m.Path); err != nil {
			return fmt.Errorf("transform: %s: staging dependency %s: %w", t.Addr, m.Addr, err)
		}
	}
	return nil
}

// Transform builds the command from Script and Env, runs it at
// WorkDir, and on success packages OutputPath as the resulting
// artifact's single layer, carried under the same Id UniqueId returns.
func (t *CommandTransform) Transform(ctx context.Context, log Logger, h *Handle, env environment.Environment) Status {
	for k, v := range t.Env {
		env.SetEnv(k, v)
	}

	cmd := environment.NewCommand(t.Addr.String(), env)
	if t.Interpreter != "" {
		cmd.SetInterpreter(t.Interpreter)
	}
	for _, line := range t.Script {
		cmd.Run(line)
	}
	if err := cmd.Send(ctx, log, t.WorkDir); err != nil {
		if t.RetryableOnFailure {
			return Retryable(t.WorkDir, err)
		}
		return Failed(t.WorkDir, err)
	}

	id, err := t.UniqueId(ctx, h)
	if err != nil {
		return Failed(t.WorkDir, fmt.Errorf("transform: %s: recomputing id: %w", t.Addr, err))
	}

	writer, err := h.Storage.SafeStartLayer(ctx)
	if err != nil {
		return Failed(t.WorkDir, fmt.Errorf("transform: %s: %w", t.Addr, err))
	}
	if err := env.Read(t.OutputPath, writer); err != nil {
		writer.Abort()
		return Failed(t.WorkDir, fmt.Errorf("transform: %s: reading output %s: %w", t.Addr, t.OutputPath, err))
	}
	layer, err := writer.Finish(t.outputMediaType(), "")
	if err != nil {
		return Failed(t.WorkDir, fmt.Errorf("transform: %s: finishing output layer: %w", t.Addr, err))
	}

	a := artifact.NewExternal(id, artifact.Config{
		Provides: t.Provides,
		Metadata: map[string]string{"transform": t.Addr.String()},
	}, []artifact.Layer{layer})
	if err := h.Storage.SafeSave(ctx, a); err != nil {
		return Failed(t.WorkDir, fmt.Errorf("transform: %s: saving output: %w", t.Addr, err))
	}
	return Success(a)
}

// outputMediaType returns OutputMediaType, defaulting to
// Tar(CompressionZstd) when unset.
func (t *CommandTransform) outputMediaType() artifact.MediaType {
	if t.OutputMediaType.Kind() == artifact.KindManifest {
		return artifact.Tar(artifact.CompressionZstd)
	}
	return t.OutputMediaType
}

// CanShell always reports true; whether the environment supports an
// interactive attach is checked by Shell.
func (t *CommandTransform) CanShell() bool { return true }

// Shell attaches an interactive session to env, rooted at WorkDir.
func (t *CommandTransform) Shell(ctx context.Context, env environment.Environment) error {
	if !env.CanShell() {
		return fmt.Errorf("transform: %s: environment does not support shell", t.Addr)
	}
	return env.Shell(ctx, t.WorkDir)
}

// stageArtifact writes or unpacks every layer of a cached artifact
// into path within env: each layer of File media type is written
// verbatim to path, any other layer is unpacked there as an archive. Mirrors
// lib/source's unexported stageArtifact helper; duplicated here since
// a Transform stages dependency artifacts the registry resolves, not
// ones a Source fetched.
func stageArtifact(ctx context.Context, h *Handle, env environment.Environment, a artifact.Artifact, path string) error {
	if len(a.Layers) == 0 {
		return fmt.Errorf("transform: stage %s: artifact has no layers", a.Config.Id)
	}
	for _, layer := range a.Layers {
		reader, err := h.Storage.SafeRead(ctx, layer)
		if err != nil {
			return fmt.Errorf("transform: stage %s: %w", a.Config.Id, err)
		}
		stageErr := stageLayer(env, path, layer, reader)
		reader.Close()
		if stageErr != nil {
			return fmt.Errorf("transform: stage %s: %w", a.Config.Id, stageErr)
		}
	}
	return nil
}

func stageLayer(env environment.Environment, path string, layer artifact.Layer, r io.Reader) error {
	switch layer.MediaType.Kind() {
	case artifact.KindFile:
		return env.Write(path, r)
	default:
		return env.Unpack(path, r)
	}
}

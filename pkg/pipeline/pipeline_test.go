package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/svgicon/pkg/errors"
	"github.com/matzehuels/svgicon/pkg/icon"
	"github.com/matzehuels/svgicon/pkg/svg"
	"github.com/matzehuels/svgicon/pkg/template"
)

const square = `<svg xmlns="http://www.w3.org/2000/svg" width="24" height="24" viewBox="0 0 24 24"><rect x="2" y="2" width="20" height="20" fill="#000"/></svg>`

// tree writes files (slash-separated path → content) below a new temp dir.
func tree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// listFiles returns every regular file below root, slash-separated and sorted.
func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(root, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	slices.Sort(files)
	return files
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestExecuteCompleteness(t *testing.T) {
	src := tree(t, map[string]string{
		"a.svg":           square,
		"icons/b.svg":     square,
		"icons/sub/c.svg": square,
		"notes.txt":       "ignored",
	})
	dst := filepath.Join(t.TempDir(), "out")

	res, err := NewRunner(nil, nil).Execute(context.Background(), Options{Source: src, Target: dst})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := []string{
		"a.js",
		"icons/b.js",
		"icons/index.js",
		"icons/sub/c.js",
		"icons/sub/index.js",
		"index.js",
	}
	if got := listFiles(t, dst); !slices.Equal(got, want) {
		t.Errorf("files = %v, want %v", got, want)
	}

	if got := readFile(t, filepath.Join(dst, "index.js")); got != "/* eslint-disable */\nrequire('./a')\nrequire('./icons')\n" {
		t.Errorf("index.js = %q", got)
	}
	if got := readFile(t, filepath.Join(dst, "icons", "index.js")); got != "/* eslint-disable */\nrequire('./b')\nrequire('./sub')\n" {
		t.Errorf("icons/index.js = %q", got)
	}
	if got := readFile(t, filepath.Join(dst, "icons", "sub", "index.js")); got != "/* eslint-disable */\nrequire('./c')\n" {
		t.Errorf("icons/sub/index.js = %q", got)
	}

	if res.Stats.Assets != 3 || res.Stats.Icons != 3 || res.Stats.Failures != 0 {
		t.Errorf("Stats = %+v", res.Stats)
	}
	var names []string
	for _, ic := range res.Icons {
		names = append(names, ic.Name())
	}
	if !slices.Equal(names, []string{"a", "icons/b", "icons/sub/c"}) {
		t.Errorf("icons = %v", names)
	}
	if len(res.Manifests) != 3 || res.Manifests[0].Path != "index.js" {
		t.Errorf("Manifests = %v", res.Manifests)
	}
}

func TestExecuteModuleContent(t *testing.T) {
	src := tree(t, map[string]string{"icons/sq.svg": square})
	dst := filepath.Join(t.TempDir(), "out")

	_, err := NewRunner(nil, nil).Execute(context.Background(), Options{
		Source: src,
		Target: dst,
		Style:  template.StyleImport,
		Ext:    "ts",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := readFile(t, filepath.Join(dst, "icons", "sq.ts"))
	want := `import icon from 'vue-svgicon'
icon.register({
  'icons/sq': {
    width: 24,
    height: 24,
    viewBox: '0 0 24 24',
    data: '<path pid="0" d="M2 2H22V22H2z" _fill="#000"/>'
  }
})
`
	if got != want {
		t.Errorf("icons/sq.ts =\n%s\nwant\n%s", got, want)
	}
	if got := readFile(t, filepath.Join(dst, "index.ts")); got != "import './icons'\n" {
		t.Errorf("index.ts = %q", got)
	}
}

func TestExecuteCustomTemplate(t *testing.T) {
	src := tree(t, map[string]string{"x.svg": square})
	tpl := filepath.Join(tree(t, map[string]string{"t.txt": "${name}|${width}|${height}|${viewBox}|${unknown}"}), "t.txt")
	dst := filepath.Join(t.TempDir(), "out")

	var logs bytes.Buffer
	logger := log.NewWithOptions(&logs, log.Options{Level: log.WarnLevel})

	if _, err := NewRunner(nil, logger).Execute(context.Background(), Options{Source: src, Target: dst, TemplatePath: tpl}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := readFile(t, filepath.Join(dst, "x.js")); got != "x|24|24|'0 0 24 24'|" {
		t.Errorf("x.js = %q", got)
	}
	out := logs.String()
	if !strings.Contains(out, "placeholder=unknown") {
		t.Errorf("expected a warning for ${unknown}, logs = %q", out)
	}
	if n := strings.Count(out, "placeholder="); n != 1 {
		t.Errorf("bound placeholders were reported too, logs = %q", out)
	}
}

func TestExecuteDestructiveRegeneration(t *testing.T) {
	src := tree(t, map[string]string{"keep.svg": square})
	dst := tree(t, map[string]string{
		"stale.js":       "old",
		"gone/index.js":  "old",
		"unrelated.json": "{}",
	})

	if _, err := NewRunner(nil, nil).Execute(context.Background(), Options{Source: src, Target: dst}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := listFiles(t, dst); !slices.Equal(got, []string{"index.js", "keep.js"}) {
		t.Errorf("files after regeneration = %v", got)
	}
}

func TestExecuteIsolatesBadAsset(t *testing.T) {
	src := tree(t, map[string]string{
		"good.svg":     square,
		"bad.svg":      `<svg><path></svg>`,
		"dir/also.svg": square,
	})
	dst := filepath.Join(t.TempDir(), "out")

	var (
		mu     sync.Mutex
		events []Event
	)
	res, err := NewRunner(nil, nil).Execute(context.Background(), Options{
		Source: src,
		Target: dst,
		OnEvent: func(e Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(res.Failures) != 1 || res.Failures[0].Rel != "bad.svg" {
		t.Fatalf("Failures = %v", res.Failures)
	}
	if !errors.Is(res.Failures[0].Err, errors.ErrCodeSanitize) {
		t.Errorf("failure code = %s", errors.GetCode(res.Failures[0].Err))
	}
	if _, err := os.Stat(filepath.Join(dst, "bad.js")); !os.IsNotExist(err) {
		t.Error("a failed asset must not leave an output file")
	}
	if got := readFile(t, filepath.Join(dst, "index.js")); strings.Contains(got, "bad") {
		t.Errorf("manifest references the failed asset: %q", got)
	}
	if got := listFiles(t, dst); !slices.Equal(got, []string{"dir/also.js", "dir/index.js", "good.js", "index.js"}) {
		t.Errorf("files = %v", got)
	}

	counts := map[EventKind]int{}
	for _, e := range events {
		counts[e.Kind]++
	}
	if counts[EventIcon] != 2 || counts[EventSkipped] != 1 || counts[EventManifest] != 2 {
		t.Errorf("event counts = %v", counts)
	}
}

func TestExecuteDiscoveryFailureLeavesTarget(t *testing.T) {
	dst := tree(t, map[string]string{"previous.js": "keep me"})

	_, err := NewRunner(nil, nil).Execute(context.Background(), Options{
		Source: filepath.Join(t.TempDir(), "missing"),
		Target: dst,
	})
	if !errors.Is(err, errors.ErrCodeDiscovery) {
		t.Fatalf("Execute error = %v, want %s", err, errors.ErrCodeDiscovery)
	}
	if !errors.IsFatal(err) {
		t.Error("discovery failures are fatal")
	}
	if got := readFile(t, filepath.Join(dst, "previous.js")); got != "keep me" {
		t.Errorf("target was modified: %q", got)
	}
}

func TestExecuteLocalWriteFailureSkipsAsset(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("renaming onto a directory is a permission error on windows")
	}
	src := tree(t, map[string]string{
		"a.svg":       square,
		"b.svg":       square,
		"icons/c.svg": square,
	})
	dst := filepath.Join(t.TempDir(), "out")

	r := NewRunner(nil, nil)
	r.writeFile = func(root, rel, content string) error {
		if rel == "b.js" {
			// A directory where the module should go.
			if err := os.MkdirAll(filepath.Join(root, "b.js"), 0755); err != nil {
				return err
			}
		}
		return writeFile(root, rel, content)
	}

	res, err := r.Execute(context.Background(), Options{Source: src, Target: dst, Workers: 2})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Failures) != 1 || res.Failures[0].Rel != "b.svg" {
		t.Fatalf("Failures = %v, want b.svg", res.Failures)
	}
	if code := errors.GetCode(res.Failures[0].Err); code != errors.ErrCodeWrite {
		t.Errorf("failure code = %s, want %s", code, errors.ErrCodeWrite)
	}
	if len(res.Icons) != 2 {
		t.Errorf("icons = %d, want 2", len(res.Icons))
	}
	if got := readFile(t, filepath.Join(dst, "index.js")); got != "/* eslint-disable */\nrequire('./a')\nrequire('./icons')\n" {
		t.Errorf("index.js = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dst, "icons", "c.js")); err != nil {
		t.Errorf("icons/c.js should be written: %v", err)
	}
}

func TestExecuteTargetWriteFailureAborts(t *testing.T) {
	files := map[string]string{}
	for i := range 20 {
		files[fmt.Sprintf("icon%02d.svg", i)] = square
	}
	src := tree(t, files)
	dst := filepath.Join(t.TempDir(), "out")

	r := NewRunner(nil, nil)
	r.writeFile = func(root, rel, content string) error {
		if rel == "icon03.js" {
			return errors.WrapWrite(fs.ErrPermission, rel)
		}
		return writeFile(root, rel, content)
	}

	var skipped int
	res, err := r.Execute(context.Background(), Options{
		Source:  src,
		Target:  dst,
		Workers: 2,
		OnEvent: func(e Event) {
			if e.Kind == EventSkipped {
				skipped++
			}
		},
	})
	if !errors.Is(err, errors.ErrCodeTarget) {
		t.Fatalf("Execute error = %v, want %s", err, errors.ErrCodeTarget)
	}
	if res != nil {
		t.Errorf("aborted run returned a result: %+v", res.Stats)
	}
	if skipped != 0 {
		t.Errorf("a systemic failure was reported as %d skipped assets", skipped)
	}
	if _, err := os.Stat(filepath.Join(dst, "index.js")); !os.IsNotExist(err) {
		t.Error("manifests should not be written after an abort")
	}
}

func TestExecuteReadOnlyTargetAborts(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("directory permissions differ on windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	src := tree(t, map[string]string{"a.svg": square, "b.svg": square})
	dst := filepath.Join(t.TempDir(), "out")
	t.Cleanup(func() { os.Chmod(dst, 0755) })

	r := NewRunner(nil, nil)
	var once sync.Once
	r.writeFile = func(root, rel, content string) error {
		var err error
		once.Do(func() { err = os.Chmod(root, 0555) })
		if err != nil {
			return err
		}
		return writeFile(root, rel, content)
	}

	_, err := r.Execute(context.Background(), Options{Source: src, Target: dst, Workers: 1})
	if !errors.Is(err, errors.ErrCodeTarget) {
		t.Fatalf("Execute error = %v, want %s", err, errors.ErrCodeTarget)
	}
	if !errors.IsFatal(err) {
		t.Error("an unwritable target is fatal")
	}
}

func TestExecuteBadTemplateLeavesTarget(t *testing.T) {
	src := tree(t, map[string]string{"a.svg": square})
	dst := tree(t, map[string]string{"previous.js": "keep me"})

	_, err := NewRunner(nil, nil).Execute(context.Background(), Options{
		Source:       src,
		Target:       dst,
		TemplatePath: filepath.Join(t.TempDir(), "nope.tpl"),
	})
	if !errors.Is(err, errors.ErrCodeInvalidTemplate) {
		t.Fatalf("Execute error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "previous.js")); err != nil {
		t.Error("target was cleared before the template loaded")
	}
}

func TestExecuteEmptySource(t *testing.T) {
	src := t.TempDir()
	dst := tree(t, map[string]string{"stale.js": "old"})

	res, err := NewRunner(nil, nil).Execute(context.Background(), Options{Source: src, Target: dst})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Icons) != 0 {
		t.Errorf("Icons = %v", res.Icons)
	}
	if got := listFiles(t, dst); !slices.Equal(got, []string{"index.js"}) {
		t.Errorf("files = %v", got)
	}
}

func TestExecuteRejectsCollisions(t *testing.T) {
	src := tree(t, map[string]string{
		"index.svg":     square,
		"sub/index.svg": square,
		"sub/ok.svg":    square,
		"x.svg":         square,
		"x.js/y.svg":    square,
	})
	dst := filepath.Join(t.TempDir(), "out")

	res, err := NewRunner(nil, nil).Execute(context.Background(), Options{Source: src, Target: dst})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var rejected []string
	for _, f := range res.Failures {
		if !errors.Is(f.Err, errors.ErrCodeCollision) {
			t.Errorf("%s: code = %s", f.Rel, errors.GetCode(f.Err))
		}
		rejected = append(rejected, f.Rel)
	}
	if !slices.Equal(rejected, []string{"index.svg", "sub/index.svg", "x.svg"}) {
		t.Errorf("rejected = %v", rejected)
	}
	if got := readFile(t, filepath.Join(dst, "sub", "index.js")); got != "/* eslint-disable */\nrequire('./ok')\n" {
		t.Errorf("sub/index.js = %q", got)
	}
}

func TestExecuteDuplicateOutputs(t *testing.T) {
	src := tree(t, map[string]string{
		"a.svg":  square,
		"a.svgz": square,
		"b.txt":  square,
	})
	dst := filepath.Join(t.TempDir(), "out")

	res, err := NewRunner(nil, nil).Execute(context.Background(), Options{
		Source:  src,
		Target:  dst,
		Pattern: "*.{svg,svgz}",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Icons) != 1 || len(res.Failures) != 1 || res.Failures[0].Rel != "a.svgz" {
		t.Errorf("icons = %d, failures = %v", len(res.Icons), res.Failures)
	}
}

var idRe = regexp.MustCompile(`\sid="([^"]*)"`)

func TestExecuteUniqueIDs(t *testing.T) {
	withID := `<svg><defs><linearGradient id="grad"/></defs><path fill="url(#grad)" d="M0 0"/></svg>`
	src := tree(t, map[string]string{
		"a/x.svg": withID,
		"b/x.svg": withID,
		"a-x.svg": withID,
	})
	dst := filepath.Join(t.TempDir(), "out")

	res, err := NewRunner(nil, nil).Execute(context.Background(), Options{Source: src, Target: dst})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	seen := map[string]string{}
	for _, ic := range res.Icons {
		var ids []string
		for _, m := range idRe.FindAllStringSubmatch(ic.Markup, -1) {
			ids = append(ids, m[1])
		}
		if len(ids) == 0 {
			t.Fatalf("%s: no ids in %s", ic.Name(), ic.Markup)
		}
		for _, id := range ids {
			if other, dup := seen[id]; dup {
				t.Errorf("id %s used by %s and %s", id, other, ic.Name())
			}
			seen[id] = ic.Name()
		}
	}
}

func TestExecuteWorkersAndOrder(t *testing.T) {
	files := map[string]string{}
	for _, name := range []string{"z", "m", "a", "q", "b", "y", "c"} {
		files["set/"+name+".svg"] = square
	}
	src := tree(t, files)

	for _, workers := range []int{1, 3, 16} {
		dst := filepath.Join(t.TempDir(), "out")
		if _, err := NewRunner(nil, nil).Execute(context.Background(), Options{Source: src, Target: dst, Workers: workers}); err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		want := "/* eslint-disable */\nrequire('./a')\nrequire('./b')\nrequire('./c')\nrequire('./m')\nrequire('./q')\nrequire('./y')\nrequire('./z')\n"
		if got := readFile(t, filepath.Join(dst, "set", "index.js")); got != want {
			t.Errorf("workers=%d: set/index.js = %q", workers, got)
		}
	}
}

type slowSanitizer struct{}

func (slowSanitizer) Sanitize(ctx context.Context, src []byte) (svg.Sanitized, error) {
	if strings.Contains(string(src), "slow") {
		<-ctx.Done()
		return svg.Sanitized{}, ctx.Err()
	}
	return svg.NewSanitizer().Sanitize(ctx, src)
}

func TestExecuteTimeout(t *testing.T) {
	src := tree(t, map[string]string{
		"fast.svg": square,
		"slow.svg": `<svg><!-- slow --></svg>`,
	})
	dst := filepath.Join(t.TempDir(), "out")

	runner := NewRunner(icon.NewCompiler(icon.WithSanitizer(slowSanitizer{}, "slow")), nil)
	res, err := runner.Execute(context.Background(), Options{
		Source:  src,
		Target:  dst,
		Timeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Failures) != 1 || !errors.Is(res.Failures[0].Err, errors.ErrCodeTimeout) {
		t.Fatalf("Failures = %v", res.Failures)
	}
	if len(res.Icons) != 1 || res.Icons[0].Name() != "fast" {
		t.Errorf("Icons = %v", res.Icons)
	}
}

func TestExecuteCanceled(t *testing.T) {
	src := tree(t, map[string]string{"a.svg": square, "b.svg": square})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(nil, nil).Execute(ctx, Options{Source: src, Target: filepath.Join(t.TempDir(), "out")})
	if err == nil {
		t.Fatal("Execute with canceled context should fail")
	}
}

func TestCompileAll(t *testing.T) {
	src := tree(t, map[string]string{
		"b.svg":      square,
		"a/c.svg":    square,
		"broken.svg": "<svg",
	})

	icons, failures, err := NewRunner(nil, nil).CompileAll(context.Background(), Options{Source: src})
	if err != nil {
		t.Fatalf("CompileAll: %v", err)
	}
	var names []string
	for _, ic := range icons {
		names = append(names, ic.Name())
	}
	if !slices.Equal(names, []string{"b", "a/c"}) {
		t.Errorf("icons = %v", names)
	}
	if len(failures) != 1 || failures[0].Rel != "broken.svg" {
		t.Errorf("failures = %v", failures)
	}
}

func TestValidateAndSetDefaults(t *testing.T) {
	src := t.TempDir()

	opts := Options{Source: src, Target: filepath.Join(src, "..", "out")}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("ValidateAndSetDefaults: %v", err)
	}
	if opts.Ext != "js" || opts.Pattern != "**/*.svg" || opts.Style != template.StyleRequire || opts.Workers < 1 || opts.Logger == nil {
		t.Errorf("defaults not applied: %+v", opts)
	}

	tests := []struct {
		name string
		opts Options
		code errors.Code
	}{
		{"no source", Options{Target: "out"}, errors.ErrCodeInvalidInput},
		{"no target", Options{Source: src}, errors.ErrCodeInvalidInput},
		{"target is source", Options{Source: src, Target: src}, errors.ErrCodeInvalidPath},
		{"target contains source", Options{Source: src, Target: filepath.Dir(src)}, errors.ErrCodeInvalidPath},
		{"target is root", Options{Source: src, Target: string(filepath.Separator)}, errors.ErrCodeInvalidPath},
		{"bad ext", Options{Source: src, Target: "out", Ext: ".js"}, errors.ErrCodeInvalidInput},
		{"bad style", Options{Source: src, Target: "out", Style: "amd"}, errors.ErrCodeInvalidInput},
		{"negative workers", Options{Source: src, Target: "out", Workers: -1}, errors.ErrCodeInvalidInput},
		{"negative timeout", Options{Source: src, Target: "out", Timeout: -time.Second}, errors.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.ValidateAndSetDefaults()
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	jobs, rejected := plan([]string{"b/x.svg", "a.svg", "b.svg", "../up.svg"}, "js")
	if !slices.Equal(jobs, []string{"a.svg", "b.svg", "b/x.svg"}) {
		t.Errorf("jobs = %v", jobs)
	}
	if len(rejected) != 1 || rejected[0].Rel != "../up.svg" {
		t.Errorf("rejected = %v", rejected)
	}
}

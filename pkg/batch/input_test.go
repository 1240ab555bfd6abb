package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInput_DescriptorAndFileName(t *testing.T) {
	tests := []struct {
		name           string
		input          Input
		index          int
		wantDescriptor string
		wantFileName   string
	}{
		{
			name:           "path input",
			input:          Input{Path: "/photos/shoes/red.jpg"},
			index:          4,
			wantDescriptor: "/photos/shoes/red.jpg",
			wantFileName:   "red.jpg",
		},
		{
			name:           "anonymous bytes",
			input:          Input{Data: []byte{0xff}},
			index:          7,
			wantDescriptor: "bytes_input_7",
			wantFileName:   "image_7.png",
		},
		{
			name:           "named bytes",
			input:          Input{Data: []byte{0xff}, Name: "upload.webp"},
			index:          1,
			wantDescriptor: "bytes_input_1",
			wantFileName:   "upload.webp",
		},
		{
			name:           "name with parent segments",
			input:          Input{Data: []byte{0xff}, Name: "../../etc/cutout.png"},
			index:          2,
			wantDescriptor: "bytes_input_2",
			wantFileName:   "cutout.png",
		},
		{
			name:           "name is parent dir",
			input:          Input{Data: []byte{0xff}, Name: ".."},
			index:          3,
			wantDescriptor: "bytes_input_3",
			wantFileName:   "image_3.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.input.Descriptor(tt.index); got != tt.wantDescriptor {
				t.Errorf("Descriptor() = %q, want %q", got, tt.wantDescriptor)
			}
			if got := tt.input.FileName(tt.index); got != tt.wantFileName {
				t.Errorf("FileName() = %q, want %q", got, tt.wantFileName)
			}
		})
	}
}

func TestFormatFilename(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{pattern: "", want: "3_dog.png"},
		{pattern: "{index}_{name}", want: "3_dog.png"},
		{pattern: "result_{index}.png", want: "result_3.png"},
		{pattern: "{name}", want: "dog.png"},
		{pattern: "static.png", want: "static.png"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			if got := FormatFilename(tt.pattern, 3, "dog.png"); got != tt.want {
				t.Errorf("FormatFilename(%q) = %q, want %q", tt.pattern, got, tt.want)
			}
		})
	}
}

func TestFromPathsAndBytes(t *testing.T) {
	paths := FromPaths("a.jpg", "b.jpg")
	if len(paths) != 2 || !paths[1].IsFile() {
		t.Errorf("FromPaths() = %+v", paths)
	}

	raw := FromBytes([]byte("x"))
	if len(raw) != 1 || raw[0].IsFile() {
		t.Errorf("FromBytes() = %+v", raw)
	}
}

func TestProgress(t *testing.T) {
	p := Progress{Total: 10, Completed: 4, Successful: 3, Failed: 1, Elapsed: 2 * time.Second}

	if p.Percent() != 40 {
		t.Errorf("Percent() = %v, want 40", p.Percent())
	}
	if p.SuccessRate() != 0.75 {
		t.Errorf("SuccessRate() = %v, want 0.75", p.SuccessRate())
	}
	if p.IsComplete() {
		t.Error("IsComplete() = true at 4/10")
	}

	empty := Progress{}
	if empty.HasEstimate() || empty.Percent() != 0 || empty.SuccessRate() != 0 {
		t.Errorf("zero Progress = %+v", empty)
	}
}

func TestEstimateRemaining(t *testing.T) {
	if got := estimateRemaining(4*time.Second, 2, 10); got != 16*time.Second {
		t.Errorf("estimateRemaining() = %v, want 16s", got)
	}
	if got := estimateRemaining(time.Second, 0, 10); got != 0 {
		t.Errorf("estimateRemaining() with nothing completed = %v, want 0", got)
	}
}

func TestAsyncReporter_Timeout(t *testing.T) {
	r := AsyncReporter{
		Fn: func(ctx context.Context, p Progress) error {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			return nil
		},
		Timeout: 20 * time.Millisecond,
	}

	err := r.Report(context.Background(), Progress{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Report() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestAsyncReporter_DefaultTimeout(t *testing.T) {
	if got := (AsyncReporter{}).timeout(); got != DefaultReportTimeout {
		t.Errorf("timeout() = %v, want %v", got, DefaultReportTimeout)
	}
	if got := (AsyncReporter{Timeout: -time.Second}).timeout(); got != DefaultReportTimeout {
		t.Errorf("timeout() with negative Timeout = %v, want %v", got, DefaultReportTimeout)
	}
}

func TestAsyncReporter_HungCallback(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	r := AsyncReporter{
		Fn: func(context.Context, Progress) error {
			<-release
			return nil
		},
		Timeout: 20 * time.Millisecond,
	}

	done := make(chan error, 1)
	go func() { done <- r.Report(context.Background(), Progress{}) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Report() error = %v, want context.DeadlineExceeded", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Report() blocked on a callback that ignores its context")
	}
}

func TestDirSink_RejectsEscapingName(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")

	for _, name := range []string{"../escape.png", "/abs.png", ""} {
		if _, err := (DirSink{Dir: out}).Save(context.Background(), name, bytesArtifact("x")); err == nil {
			t.Errorf("Save(%q) error = nil, want rejection", name)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.png")); !os.IsNotExist(err) {
		t.Errorf("file written outside output dir: %v", err)
	}
}

func TestAsyncReporter_Panic(t *testing.T) {
	r := AsyncReporter{
		Fn: func(context.Context, Progress) error { panic("boom") },
	}

	err := r.Report(context.Background(), Progress{})
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Errorf("Report() error = %v, want panic error", err)
	}
}

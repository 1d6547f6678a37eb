package visualization

import (
	"path/filepath"
	"testing"
)

func TestBrowserCommand(t *testing.T) {
	tests := []struct {
		goos    string
		want    string
		wantErr bool
	}{
		{"linux", "xdg-open", false},
		{"darwin", "open", false},
		{"windows", "cmd", false},
		{"plan9", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			cmd, err := browserCommand(tt.goos, "http://localhost:1234/")
			if (err != nil) != tt.wantErr {
				t.Fatalf("browserCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := filepath.Base(cmd.Args[0]); got != tt.want {
				t.Errorf("launcher = %q, want %q", got, tt.want)
			}
			if last := cmd.Args[len(cmd.Args)-1]; last != "http://localhost:1234/" {
				t.Errorf("url arg = %q", last)
			}
		})
	}
}

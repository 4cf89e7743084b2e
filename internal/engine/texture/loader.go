package texture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/istavang/medea.js/internal/engine/terrain"
)

// Loader reads heightmaps from the file system or over HTTP.
type Loader struct {
	Client *http.Client
	Log    *zap.Logger
}

// NewLoader creates a loader using http.DefaultClient.
func NewLoader(log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{Client: http.DefaultClient, Log: log}
}

// Load fetches and decodes the heightmap at p.
func (l *Loader) Load(ctx context.Context, p string) (terrain.Image, error) {
	data, err := l.read(ctx, p)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data, p)
	if err != nil {
		return nil, err
	}

	hm := NewHeightmap(img)
	l.Log.Debug("heightmap decoded",
		zap.String("path", p),
		zap.Int("width", hm.Width()),
		zap.Int("height", hm.Height()),
	)
	return hm, nil
}

func (l *Loader) read(ctx context.Context, p string) ([]byte, error) {
	if !strings.HasPrefix(p, "http://") && !strings.HasPrefix(p, "https://") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading heightmap: %w", err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p, nil)
	if err != nil {
		return nil, err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching heightmap: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching heightmap %s: %s", p, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

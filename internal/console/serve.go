package console

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
)

// Serve runs the console over HTTP/SSE on addr until ctx is done.
func (c *Console) Serve(ctx context.Context, addr string) error {
	sseServer := server.NewSSEServer(c.server,
		server.WithBaseURL("http://"+addr),
		server.WithStaticBasePath(basePath),
	)

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("Starting operator console with HTTP/SSE transport", "address", addr, "base_path", basePath)
		errCh <- sseServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sseServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

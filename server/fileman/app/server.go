package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"files_manager/server/auth/credentials"
	"files_manager/server/auth/token"
	commonlog "files_manager/server/common/log"
	fileapi "files_manager/server/fileman/api"
	"files_manager/server/fileman/queue"
	"files_manager/server/fileman/repository"
	"files_manager/server/fileman/service"
	"files_manager/server/fileman/worker"
)

type Server struct {
	HTTPServer *http.Server

	worker   *worker.Worker
	jobs     queue.Queue
	embedded int
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	closers  closers
}

func NewServer(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := &Server{embedded: cfg.EmbeddedWorkers}
	if cfg.QueueDriver == QueueDriverMemory && s.embedded < 1 {
		commonlog.Warnf("QUEUE_DRIVER=memory without embedded workers: running 1 embedded worker")
		s.embedded = 1
	}
	ok := false
	defer func() {
		if !ok {
			s.closers.closeAll()
		}
	}()

	pool, err := openPool(ctx, cfg, &s.closers)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg, &s.closers)
	if err != nil {
		return nil, err
	}
	jobs, err := openQueue(cfg, "files_manager-api", s.embedded, &s.closers)
	if err != nil {
		return nil, err
	}
	s.jobs = jobs

	users := repository.NewUserRepository(pool)
	files := repository.NewFileRepository(pool)
	hasher := credentials.NewHasher(cfg.LegacySHA1Passwords)

	if s.embedded > 0 {
		sink, err := newSink(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.worker = worker.New(files, worker.NewImagingThumbnailer(), sink)
	}

	h := fileapi.NewHandler(fileapi.Deps{
		Tokens:      token.NewAuthority(store),
		Credentials: credentials.NewVerifier(users, hasher),
		Hasher:      hasher,
		Users:       users,
		Files:       files,
		Uploads:     service.NewFileService(files, jobs, cfg.FolderPath),
		CacheAlive:  store.IsAlive,
		DBAlive:     func(ctx context.Context) bool { return pool.Ping(ctx) == nil },
	})
	r := gin.Default()
	h.RegisterRoutes(r)

	s.HTTPServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	ok = true
	return s, nil
}

// StartWorkers launches the embedded thumbnail consumers, if any.
func (s *Server) StartWorkers() {
	if s.worker == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		commonlog.Infof("start %d embedded thumbnail worker(s)", s.embedded)
		s.worker.RunN(ctx, s.jobs, s.embedded)
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTPServer.Shutdown(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = fmt.Errorf("wait for thumbnail workers: %w", ctx.Err())
		}
	}
	s.closers.closeAll()
	return err
}

// Package api exposes the board service over HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

const (
	maxBoardBodySize  = 4 << 20
	maxChangeBodySize = 1 << 20
)

// BoardService is the board logic behind the routes.
type BoardService interface {
	List(ctx context.Context, filter domain.BoardFilter) ([]domain.Board, error)
	Get(ctx context.Context, id string, filter domain.TaskFilter) (*domain.Board, error)
	Create(ctx context.Context, b domain.Board) (*domain.Board, error)
	Replace(ctx context.Context, b domain.Board, actor string) (*domain.Board, error)
	Remove(ctx context.Context, id string) error
	ApplyChange(ctx context.Context, boardID string, req domain.ChangeRequest, actor string) (*domain.Board, error)
	QueueActivity(ctx context.Context, req domain.ActivityRequest) error
}

// Register wires up all API routes on the provided Echo instance. deduper may
// be nil.
func Register(e *echo.Echo, svc BoardService, auth Authenticator, deduper Deduper, logger *log.Logger) {
	e.GET("/healthz", healthz)

	g := e.Group("/api/boards", Observe(logger), GzipRequestMiddleware(), RequireAuth(auth))
	g.GET("", listBoards(svc))
	g.POST("", createBoard(svc))
	g.GET("/:id", getBoard(svc))
	g.PUT("/:id", replaceBoard(svc))
	g.DELETE("/:id", removeBoard(svc))
	g.PATCH("/:id/change", changeBoard(svc))
	g.POST("/:id/activities", postActivity(svc, deduper))
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func listBoards(svc BoardService) echo.HandlerFunc {
	return func(c echo.Context) error {
		filter := domain.BoardFilter{CreatedBy: c.QueryParam("createdBy"), Title: c.QueryParam("title")}
		m := metricsFrom(c)
		start := time.Now()
		boards, err := svc.List(c.Request().Context(), filter)
		m.ObserveStore(time.Since(start))
		if err != nil {
			return fail(c, "storage", err)
		}
		return c.JSON(http.StatusOK, boards)
	}
}

func getBoard(svc BoardService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		m := metricsFrom(c)
		m.SetBoard(id)
		filter := domain.TaskFilter{
			Text:      c.QueryParam("txt"),
			LabelIDs:  splitList(c.QueryParam("labelIds")),
			MemberIDs: splitList(c.QueryParam("memberIds")),
		}
		start := time.Now()
		b, err := svc.Get(c.Request().Context(), id, filter)
		m.ObserveStore(time.Since(start))
		if err != nil {
			return fail(c, "storage", err)
		}
		return c.JSON(http.StatusOK, b)
	}
}

func createBoard(svc BoardService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var b domain.Board
		if err := decodeBody(c, maxBoardBodySize, &b); err != nil {
			return fail(c, "decode", err)
		}
		if b.CreatedBy == nil {
			id := identityFrom(c)
			b.CreatedBy = &domain.Member{ID: id.UserID, Fullname: id.Name}
		}
		m := metricsFrom(c)
		start := time.Now()
		out, err := svc.Create(c.Request().Context(), b)
		m.ObserveStore(time.Since(start))
		if err != nil {
			return fail(c, "storage", err)
		}
		m.SetBoard(out.ID)
		return c.JSON(http.StatusCreated, out)
	}
}

func replaceBoard(svc BoardService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		m := metricsFrom(c)
		m.SetBoard(id)
		var b domain.Board
		if err := decodeBody(c, maxBoardBodySize, &b); err != nil {
			return fail(c, "decode", err)
		}
		if b.ID == "" {
			b.ID = id
		}
		if b.ID != id {
			return fail(c, "decode", fmt.Errorf("%w: board id %q does not match path", errBadBody, b.ID))
		}
		start := time.Now()
		out, err := svc.Replace(c.Request().Context(), b, identityFrom(c).UserID)
		m.ObserveStore(time.Since(start))
		if err != nil {
			return fail(c, "storage", err)
		}
		return c.JSON(http.StatusOK, out)
	}
}

func removeBoard(svc BoardService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		m := metricsFrom(c)
		m.SetBoard(id)
		start := time.Now()
		err := svc.Remove(c.Request().Context(), id)
		m.ObserveStore(time.Since(start))
		if err != nil {
			return fail(c, "storage", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func changeBoard(svc BoardService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		m := metricsFrom(c)
		m.SetBoard(id)
		var req domain.ChangeRequest
		if err := decodeBody(c, maxChangeBodySize, &req); err != nil {
			return fail(c, "decode", err)
		}
		if req.Key == "" {
			return fail(c, "decode", fmt.Errorf("%w: missing key", domain.ErrInvalidChange))
		}
		start := time.Now()
		out, err := svc.ApplyChange(c.Request().Context(), id, req, identityFrom(c).UserID)
		m.ObserveStore(time.Since(start))
		if err != nil {
			return fail(c, "apply", err)
		}
		return c.JSON(http.StatusOK, out)
	}
}

func postActivity(svc BoardService, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		m := metricsFrom(c)
		m.SetBoard(id)
		var req domain.ActivityRequest
		if err := decodeBody(c, maxChangeBodySize, &req); err != nil {
			return fail(c, "decode", err)
		}
		req.BoardID = id
		if req.By == nil {
			ident := identityFrom(c)
			req.By = &domain.Member{ID: ident.UserID, Fullname: ident.Name}
		}
		ctx := c.Request().Context()
		if deduper != nil && req.IdempotencyKey != "" {
			added, err := deduper.Add(ctx, id, req.IdempotencyKey)
			if err != nil {
				return fail(c, "dedupe", err)
			}
			if !added {
				return c.NoContent(http.StatusAccepted)
			}
		}
		start := time.Now()
		err := svc.QueueActivity(ctx, req)
		m.ObserveStore(time.Since(start))
		if err != nil {
			if deduper != nil && req.IdempotencyKey != "" {
				if rerr := deduper.Remove(ctx, id, req.IdempotencyKey); rerr != nil {
					c.Logger().Errorf("dedupe rollback failed: %v", rerr)
				}
			}
			return fail(c, "enqueue", err)
		}
		return c.NoContent(http.StatusAccepted)
	}
}

func decodeBody(c echo.Context, limit int64, out any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

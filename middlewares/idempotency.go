package middlewares

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/neighborhood-grub/idempotency"
	"github.com/yeremiapane/neighborhood-grub/utils"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"
)

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response when a caller retries a mutating
// request with the same Idempotency-Key. Only successful responses are kept,
// so a failed attempt can be retried for real. Keys are scoped per account.
func Idempotency(store *idempotency.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		actor, _ := ActorFrom(c)
		scoped := fmt.Sprintf("%d:%s", actor.AccountID, key)

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			utils.RespondError(c, http.StatusBadRequest, errors.New("cannot read request body"))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		sum := sha256.Sum256(body)
		fingerprint := c.Request.Method + " " + c.Request.URL.Path + " " + hex.EncodeToString(sum[:])

		prev, err := store.Get(scoped)
		switch {
		case err == nil:
			if prev.Fingerprint != fingerprint {
				utils.RespondError(c, http.StatusUnprocessableEntity, errors.New("Idempotency-Key was used with a different request"))
				c.Abort()
				return
			}
			c.Header(ReplayedHeader, "true")
			c.Data(prev.Status, prev.ContentType, prev.Body)
			c.Abort()
			return
		case !errors.Is(err, idempotency.ErrNotFound):
			utils.ErrorLogger.WithField("key", scoped).Errorf("idempotency lookup failed: %v", err)
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status < 200 || status >= 300 {
			return
		}
		_, _, err = store.Save(&idempotency.Response{
			Key:         scoped,
			Fingerprint: fingerprint,
			Status:      status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		if err != nil {
			utils.ErrorLogger.WithFields(logrus.Fields{"key": scoped, "status": status}).
				Errorf("idempotency save failed: %v", err)
		}
	}
}

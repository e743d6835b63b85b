package server

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quells-bot/chat-session/chat"
)

// Conversation is the session surface the HTTP API drives.
type Conversation interface {
	Send(ctx context.Context, prompt string, image []byte) chat.Reply
	Log() []chat.Turn
	Len() int
	State() chat.State
}

type chatRequest struct {
	Prompt string `json:"prompt"`
	// Image is base64 or a data URI.
	Image string `json:"image"`
}

type chatResponse struct {
	HTML    string `json:"html"`
	Raw     string `json:"raw,omitempty"`
	State   string `json:"state"`
	Failed  bool   `json:"failed"`
	Failure string `json:"failure,omitempty"`
	Turns   int    `json:"turns"`
}

type turnView struct {
	ID       string    `json:"id"`
	Role     string    `json:"role"`
	Text     string    `json:"text"`
	HasImage bool      `json:"has_image"`
	Failed   bool      `json:"failed"`
	At       time.Time `json:"at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type chatHandler struct {
	conv           Conversation
	maxUploadBytes int64
	onReply        func(chat.Reply)
}

func (h *chatHandler) send(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	prompt, image, err := h.readSubmission(c)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		_ = c.Error(err)
		c.JSON(status, errorResponse{Error: err.Error()})
		return
	}

	reply := h.conv.Send(c.Request.Context(), prompt, image)
	if h.onReply != nil {
		h.onReply(reply)
	}
	if reply.Skipped {
		c.Status(http.StatusNoContent)
		return
	}

	resp := chatResponse{
		HTML:   reply.Text,
		Raw:    reply.Raw,
		State:  reply.State.String(),
		Failed: reply.Failed(),
		Turns:  h.conv.Len(),
	}
	if reply.Failed() {
		resp.Failure = reply.Failure.String()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *chatHandler) readSubmission(c *gin.Context) (string, []byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		return readMultipart(c)
	}

	// An empty body is an empty submission.
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		return "", nil, err
	}
	image, err := decodeImage(req.Image)
	if err != nil {
		return "", nil, err
	}
	return req.Prompt, image, nil
}

func readMultipart(c *gin.Context) (string, []byte, error) {
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return c.PostForm("prompt"), nil, nil
	}
	if err != nil {
		return "", nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	image, err := io.ReadAll(f)
	if err != nil {
		return "", nil, err
	}
	return c.PostForm("prompt"), image, nil
}

// decodeImage accepts plain base64 or a "data:<type>;base64,<payload>" URI.
func decodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 || !strings.HasSuffix(s[:i], ";base64") {
			return nil, errors.New("image data URI must be base64 encoded")
		}
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.New("image is not valid base64")
	}
	return data, nil
}

func (h *chatHandler) history(c *gin.Context) {
	turns := h.conv.Log()
	out := make([]turnView, 0, len(turns))
	for _, t := range turns {
		out = append(out, turnView{
			ID:       t.ID.String(),
			Role:     string(t.Message.Role),
			Text:     t.Message.Text(),
			HasImage: t.Message.HasImage(),
			Failed:   t.Failed,
			At:       t.At,
		})
	}
	c.JSON(http.StatusOK, gin.H{"turns": out})
}

func (h *chatHandler) state(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.conv.State().String()})
}

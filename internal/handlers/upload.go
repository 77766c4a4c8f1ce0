package handlers

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/nfnt/resize"

	"github.com/example/amorii/internal/config"
)

// maxImagePixels bounds the decoded canvas, about 160 MB of RGBA.
const maxImagePixels = 40_000_000

// UploadHandler forwards uploaded images to the image host.
type UploadHandler struct {
	cfg    *config.Config
	images ImageHost
}

// NewUploadHandler constructs UploadHandler.
func NewUploadHandler(cfg *config.Config, images ImageHost) *UploadHandler {
	return &UploadHandler{cfg: cfg, images: images}
}

// Upload accepts a PNG or JPEG in the "image" form field, shrinks it to the
// configured width, hosts it and returns the hosted URLs. The local copy is
// written under a per-request name and removed before responding.
func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	header, err := c.FormFile("image")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "image is missing")
	}

	file, err := header.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to read image")
	}
	defer file.Close()

	// The header is checked before decoding so a small file cannot claim a
	// huge canvas and exhaust memory.
	imgCfg, format, err := image.DecodeConfig(file)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to decode image")
	}
	if format != "png" && format != "jpeg" {
		return fiber.NewError(fiber.StatusBadRequest, "unsupported image format, only PNG and JPEG are allowed")
	}
	if int64(imgCfg.Width)*int64(imgCfg.Height) > maxImagePixels {
		return fiber.NewError(fiber.StatusBadRequest, "image dimensions are too large")
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to read image")
	}

	img, _, err := image.Decode(file)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to decode image")
	}

	if maxWidth := h.cfg.ImageMaxWidth; maxWidth > 0 && uint(img.Bounds().Dx()) > maxWidth {
		img = resize.Resize(maxWidth, 0, img, resize.Lanczos3)
	}

	if err := os.MkdirAll(h.cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(h.cfg.UploadDir, uuid.NewString()+"."+format)
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("[Upload] failed to remove %s: %v", path, err)
		}
	}()

	if err := writeImage(path, img, format); err != nil {
		return err
	}

	hosted, err := h.images.Upload(c.UserContext(), path)
	if err != nil {
		log.Printf("[Upload] image host failed: %v", err)
		return fiber.NewError(fiber.StatusBadGateway, "image upload failed")
	}

	return okRes(c, hosted)
}

func writeImage(path string, img image.Image, format string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if format == "png" {
		err = png.Encode(out, img)
	} else {
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: 85})
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

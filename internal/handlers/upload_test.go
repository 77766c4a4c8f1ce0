package handlers

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/example/amorii/internal/services"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// hugePNG rewrites the IHDR of a tiny PNG to claim a width x height canvas.
func hugePNG(t *testing.T, width, height uint32) []byte {
	t.Helper()
	data := pngBytes(t, 1, 1)
	binary.BigEndian.PutUint32(data[16:20], width)
	binary.BigEndian.PutUint32(data[20:24], height)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func (env *testEnv) upload(t *testing.T, field, filename string, content []byte, token string) response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	} else {
		_ = mw.WriteField("note", "no file")
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("token", token)
	return env.send(t, req)
}

func assertUploadDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("local copies were left behind: %v", entries)
	}
}

func TestUploadResizesAndHostsImage(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "+9647701234567", "Passw0rd!", true)

	res := env.upload(t, "image", "photo.png", pngBytes(t, 200, 100), env.sessionToken(t, user.ID))
	if res.Status != http.StatusOK || !res.Env.Success {
		t.Fatalf("status = %d body = %s", res.Status, res.Body)
	}

	var hosted services.HostedImage
	res.decodeData(t, &hosted)
	if hosted.URL != "https://i.ibb.co/img1/upload.png" {
		t.Fatalf("unexpected hosted image %+v", hosted)
	}

	if len(env.images.widths) != 1 || env.images.widths[0] != int(env.cfg.ImageMaxWidth) {
		t.Fatalf("expected image resized to %d, got %v", env.cfg.ImageMaxWidth, env.images.widths)
	}
	assertUploadDirEmpty(t, env.cfg.UploadDir)
}

func TestUploadKeepsSmallImageSize(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "+9647701234567", "Passw0rd!", true)

	res := env.upload(t, "image", "icon.png", pngBytes(t, 32, 32), env.sessionToken(t, user.ID))
	if res.Status != http.StatusOK {
		t.Fatalf("status = %d body = %s", res.Status, res.Body)
	}
	if env.images.widths[0] != 32 {
		t.Fatalf("small image should not be resized, width = %d", env.images.widths[0])
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "+9647701234567", "Passw0rd!", true)
	token := env.sessionToken(t, user.ID)

	res := env.upload(t, "", "", nil, token)
	if res.Status != http.StatusBadRequest || res.Env.Error != "image is missing" {
		t.Fatalf("missing status = %d body = %s", res.Status, res.Body)
	}

	res = env.upload(t, "image", "notes.txt", []byte("definitely not an image"), token)
	if res.Status != http.StatusBadRequest || res.Env.Error != "failed to decode image" {
		t.Fatalf("garbage status = %d body = %s", res.Status, res.Body)
	}

	res = env.upload(t, "image", "bomb.png", hugePNG(t, 100000, 100000), token)
	if res.Status != http.StatusBadRequest || res.Env.Error != "image dimensions are too large" {
		t.Fatalf("oversized status = %d body = %s", res.Status, res.Body)
	}

	if len(env.images.uploaded) != 0 {
		t.Fatalf("image host must not be called")
	}
}

func TestUploadHostFailure(t *testing.T) {
	env := newTestEnv(t)
	env.images.err = errors.New("quota exceeded")
	user := env.seedUser(t, "+9647701234567", "Passw0rd!", true)

	res := env.upload(t, "image", "photo.png", pngBytes(t, 80, 40), env.sessionToken(t, user.ID))
	if res.Status != http.StatusBadGateway || res.Env.Error != "image upload failed" {
		t.Fatalf("status = %d body = %s", res.Status, res.Body)
	}
	assertUploadDirEmpty(t, env.cfg.UploadDir)
}

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/image/draw"
)

// allowedImageHosts are the artwork origins the proxy will fetch from.
var allowedImageHosts = map[string]bool{
	"static.tvmaze.com":     true,
	"commons.wikimedia.org": true,
	"upload.wikimedia.org":  true,
	"cdn.myanimelist.net":   true,
}

// ImageHandler proxies poster artwork with optional downscaling and an
// on-disk JPEG cache, so the UI never hotlinks catalog CDNs directly.
type ImageHandler struct {
	cacheDir string
	httpc    *http.Client

	mu         sync.Mutex
	inProgress map[string]chan struct{}
}

func NewImageHandler(cacheDir string) *ImageHandler {
	dir := filepath.Join(cacheDir, "posters")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("[images] could not create cache dir %s: %v", dir, err)
	}
	return &ImageHandler{
		cacheDir:   dir,
		httpc:      &http.Client{Timeout: 30 * time.Second},
		inProgress: make(map[string]chan struct{}),
	}
}

// Proxy fetches, optionally resizes, caches, and serves a poster.
// Query params: url (required), w (target width), q (JPEG quality).
func (h *ImageHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	sourceURL := r.URL.Query().Get("url")
	if sourceURL == "" {
		http.Error(w, "url parameter required", http.StatusBadRequest)
		return
	}

	parsed, err := url.Parse(sourceURL)
	if err != nil || !allowedImageHosts[parsed.Host] {
		http.Error(w, "URL not allowed", http.StatusForbidden)
		return
	}

	targetWidth := 0
	if ws := r.URL.Query().Get("w"); ws != "" {
		if n, err := strconv.Atoi(ws); err == nil && n > 0 && n <= 2000 {
			targetWidth = n
		}
	}
	quality := 80
	if qs := r.URL.Query().Get("q"); qs != "" {
		if n, err := strconv.Atoi(qs); err == nil && n >= 1 && n <= 100 {
			quality = n
		}
	}

	cacheKey := imageCacheKey(sourceURL, targetWidth, quality)
	cachePath := filepath.Join(h.cacheDir, cacheKey+".jpg")

	if h.serveCached(w, cachePath, "HIT") {
		return
	}

	// Dedupe concurrent fetches of the same poster.
	h.mu.Lock()
	if ch, busy := h.inProgress[cacheKey]; busy {
		h.mu.Unlock()
		<-ch
		if h.serveCached(w, cachePath, "HIT") {
			return
		}
		http.Error(w, "failed to load image", http.StatusBadGateway)
		return
	}
	ch := make(chan struct{})
	h.inProgress[cacheKey] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.inProgress, cacheKey)
		close(ch)
		h.mu.Unlock()
	}()

	resp, err := h.httpc.Get(sourceURL)
	if err != nil {
		log.Printf("[images] fetch %s failed: %v", sourceURL, err)
		http.Error(w, "failed to fetch image", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		http.Error(w, "image source error", resp.StatusCode)
		return
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		log.Printf("[images] decode %s failed: %v", sourceURL, err)
		http.Error(w, "failed to decode image", http.StatusBadGateway)
		return
	}

	if targetWidth > 0 && targetWidth < img.Bounds().Dx() {
		img = downscale(img, targetWidth)
	}

	tmpPath := cachePath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		// Serve without caching.
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("X-Cache", "MISS-NOCACHE")
		jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
		return
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		os.Remove(tmpPath)
		http.Error(w, "failed to encode image", http.StatusInternalServerError)
		return
	}
	f.Close()
	if err := os.Rename(tmpPath, cachePath); err != nil {
		os.Remove(tmpPath)
		log.Printf("[images] cache rename failed: %v", err)
	}

	if !h.serveCached(w, cachePath, "MISS") {
		http.Error(w, "failed to read cached image", http.StatusInternalServerError)
	}
}

func (h *ImageHandler) serveCached(w http.ResponseWriter, path, cacheState string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=2592000")
	w.Header().Set("X-Cache", cacheState)
	w.Write(data)
	return true
}

func downscale(img image.Image, targetWidth int) image.Image {
	bounds := img.Bounds()
	ratio := float64(targetWidth) / float64(bounds.Dx())
	targetHeight := int(float64(bounds.Dy()) * ratio)

	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func imageCacheKey(url string, width, quality int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", url, width, quality)))
	return hex.EncodeToString(sum[:16])
}

func (h *ImageHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

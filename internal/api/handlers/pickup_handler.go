// internal/api/handlers/pickup_handler.go
package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"pickup-map-api-server/internal/database"
	"pickup-map-api-server/internal/geo"
	"pickup-map-api-server/internal/models"
	"pickup-map-api-server/internal/s3"
)

const (
	MaxDescriptionLength = 1000
	DefaultListLimit     = 200
	MaxListLimit         = 1000
	clusterFetchLimit    = 5000
	reverseLookupTimeout = 3 * time.Second

	msgPhotoRequired    = "Please select an image before submitting."
	msgLocationRequired = "Please provide a location before submitting."
	msgSubmitted        = "Pickup submitted successfully! It will be reviewed before appearing on the map."
)

// PickupStore is the persistence the pickup and admin handlers need.
type PickupStore interface {
	Create(ctx context.Context, p *models.Pickup) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Pickup, error)
	ListByStatus(ctx context.Context, status models.PickupStatus, limit int64) ([]models.Pickup, error)
	ListApprovedInBBox(ctx context.Context, bbox geo.BBox, limit int64) ([]models.Pickup, error)
	Review(ctx context.Context, id primitive.ObjectID, next models.PickupStatus, reviewer string, at time.Time) (*models.Pickup, error)
}

// PhotoStorage stores uploaded photos and returns their public URL.
type PhotoStorage interface {
	UploadFile(ctx context.Context, file io.Reader, objectKey, contentType string) (string, error)
	DeleteFile(ctx context.Context, objectKey string) error
}

// ReverseGeocoder turns coordinates into a "City, State, Country" label.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

type PickupHandler struct {
	Store    PickupStore
	Storage  PhotoStorage
	Geocoder ReverseGeocoder // optional
	MaxBytes int64
	Now      func() time.Time
}

func currentTime(now func() time.Time) time.Time {
	if now != nil {
		return now()
	}
	return time.Now()
}

// SubmitPickup accepts a multipart form with a photo and coordinates and
// stores the pickup as pending.
func (h *PickupHandler) SubmitPickup(c *gin.Context) {
	if h.MaxBytes > 0 {
		// room for the other form fields on top of the photo
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxBytes+1<<20)
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Photo is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msgPhotoRequired})
		return
	}

	point, ok := parsePoint(c.PostForm("latitude"), c.PostForm("longitude"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgLocationRequired})
		return
	}

	description := strings.TrimSpace(c.PostForm("description"))
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Description must be at most 1000 characters"})
		return
	}

	source := models.LocationSource(c.DefaultPostForm("location_source", string(models.LocationGPS)))
	if !source.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location_source must be gps or manual"})
		return
	}
	label := strings.TrimSpace(c.PostForm("location_label"))

	if h.MaxBytes > 0 && fileHeader.Size > h.MaxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Photo is too large"})
		return
	}

	file, contentType, err := openImage(fileHeader)
	if err != nil {
		if errors.Is(err, errNotAnImage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Only image files can be uploaded"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msgPhotoRequired})
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	if source == models.LocationGPS && label == "" && h.Geocoder != nil {
		label = h.lookupLabel(ctx, point)
	}

	now := currentTime(h.Now).UTC()
	objectKey := s3.ObjectKey(now, fileHeader.Filename)
	photoURL, err := h.Storage.UploadFile(ctx, file, objectKey, contentType)
	if err != nil {
		zap.L().Error("photo upload failed", zap.String("key", objectKey), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload photo"})
		return
	}

	pickup := models.Pickup{
		CreatedAt:      now,
		Latitude:       point.Latitude,
		Longitude:      point.Longitude,
		Description:    description,
		PhotoURL:       photoURL,
		PhotoKey:       objectKey,
		Status:         models.StatusPending,
		LocationSource: source,
		LocationLabel:  label,
		Geohash:        geo.Hash(point.Latitude, point.Longitude),
	}
	if err := h.Store.Create(ctx, &pickup); err != nil {
		zap.L().Error("insert pickup failed", zap.Error(err))
		if delErr := h.Storage.DeleteFile(context.WithoutCancel(ctx), objectKey); delErr != nil {
			zap.L().Warn("orphaned photo left in bucket", zap.String("key", objectKey), zap.Error(delErr))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save pickup"})
		return
	}

	zap.L().Info("pickup submitted",
		zap.String("pickup_id", pickup.ID.Hex()),
		zap.String("location_source", string(source)))

	c.JSON(http.StatusCreated, gin.H{
		"message": msgSubmitted,
		"pickup":  pickup,
	})
}

func (h *PickupHandler) lookupLabel(ctx context.Context, p geo.Point) string {
	ctx, cancel := context.WithTimeout(ctx, reverseLookupTimeout)
	defer cancel()
	label, err := h.Geocoder.Reverse(ctx, p.Latitude, p.Longitude)
	if err != nil {
		zap.L().Warn("reverse geocode failed", zap.Float64("lat", p.Latitude), zap.Float64("lng", p.Longitude), zap.Error(err))
		return ""
	}
	return label
}

// ListVisiblePickups returns approved pickups inside the optional bbox.
func (h *PickupHandler) ListVisiblePickups(c *gin.Context) {
	bbox, ok := bboxQuery(c)
	if !ok {
		return
	}
	limit, ok := limitQuery(c)
	if !ok {
		return
	}

	pickups, err := h.Store.ListApprovedInBBox(c.Request.Context(), bbox, limit)
	if err != nil {
		zap.L().Error("list approved pickups failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query pickups"})
		return
	}
	if pickups == nil {
		pickups = []models.Pickup{}
	}
	c.JSON(http.StatusOK, pickups)
}

// GetPickupClusters groups approved pickups in the viewport for a zoom level.
func (h *PickupHandler) GetPickupClusters(c *gin.Context) {
	bbox, ok := bboxQuery(c)
	if !ok {
		return
	}
	zoom, err := strconv.Atoi(c.Query("zoom"))
	if err != nil || zoom < 0 || zoom > 22 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "zoom must be an integer between 0 and 22"})
		return
	}

	pickups, err := h.Store.ListApprovedInBBox(c.Request.Context(), bbox, clusterFetchLimit)
	if err != nil {
		zap.L().Error("list approved pickups failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query pickups"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"zoom":      zoom,
		"precision": geo.PrecisionForZoom(zoom),
		"total":     len(pickups),
		"clusters":  geo.ClusterPickups(pickups, zoom),
	})
}

// GetPickup returns an approved pickup. Anything else looks like it does not exist.
func (h *PickupHandler) GetPickup(c *gin.Context) {
	id, ok := objectIDParam(c)
	if !ok {
		return
	}

	pickup, err := h.Store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrPickupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Pickup not found"})
			return
		}
		zap.L().Error("get pickup failed", zap.String("pickup_id", id.Hex()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve pickup"})
		return
	}
	if pickup.Status != models.StatusApproved {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pickup not found"})
		return
	}
	c.JSON(http.StatusOK, pickup)
}

func parsePoint(rawLat, rawLng string) (geo.Point, bool) {
	rawLat, rawLng = strings.TrimSpace(rawLat), strings.TrimSpace(rawLng)
	if rawLat == "" || rawLng == "" {
		return geo.Point{}, false
	}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return geo.Point{}, false
	}
	lng, err := strconv.ParseFloat(rawLng, 64)
	if err != nil {
		return geo.Point{}, false
	}
	if geo.ValidatePoint(lat, lng) != nil {
		return geo.Point{}, false
	}
	return geo.Point{Latitude: lat, Longitude: lng}, true
}

var errNotAnImage = errors.New("photo is not an image")

// openImage sniffs the upload and rewinds it for the real read.
func openImage(fh *multipart.FileHeader) (multipart.File, string, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	mtype, err := mimetype.DetectReader(file)
	if err != nil || !strings.HasPrefix(mtype.String(), "image/") {
		file.Close()
		return nil, "", errNotAnImage
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, "", err
	}
	return file, mtype.String(), nil
}

func bboxQuery(c *gin.Context) (geo.BBox, bool) {
	raw := strings.TrimSpace(c.Query("bbox"))
	if raw == "" {
		return geo.World(), true
	}
	bbox, err := geo.ParseBBox(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bbox must be minLng,minLat,maxLng,maxLat"})
		return geo.BBox{}, false
	}
	return bbox, true
}

func limitQuery(c *gin.Context) (int64, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return DefaultListLimit, true
	}
	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, true
}

func objectIDParam(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pickup ID"})
		return primitive.NilObjectID, false
	}
	return id, true
}

// Package face implements the enrollment and authentication workflows
// on top of the template store, the face locator, and the recognizer
// adapter. All classifier mutations funnel through here.
package face

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/your-org/faceauth/internal/auth"
	"github.com/your-org/faceauth/internal/models"
	"github.com/your-org/faceauth/internal/observability"
	"github.com/your-org/faceauth/internal/recognizer"
	"github.com/your-org/faceauth/internal/storage"
	"github.com/your-org/faceauth/internal/vision"
	"github.com/your-org/faceauth/pkg/dto"
)

var (
	// ErrValidation means required input was missing or malformed.
	ErrValidation = errors.New("validation error")
	// ErrTrainingFailed means a retrain produced no usable model.
	ErrTrainingFailed = errors.New("training failed")
	// ErrNoPassword means the identity has no password set.
	ErrNoPassword = errors.New("no password set")
	// ErrBadPassword means the supplied password did not match.
	ErrBadPassword = errors.New("wrong password")
)

// EventSink receives enrollment/authentication outcome events. Sinks
// must not block; publishing failures never fail the request.
type EventSink interface {
	Publish(ctx context.Context, evt dto.FaceEvent)
}

// Service orchestrates decode, detect, persist, retrain and predict.
type Service struct {
	store     storage.Store
	templates *storage.TemplateStore
	locator   vision.Locator
	rec       *recognizer.Adapter
	threshold float64
	sinks     []EventSink

	// retrainMu serializes retrains and model-file checks. Predictions
	// are not held up by it: the adapter swaps complete models
	// atomically.
	retrainMu sync.Mutex
}

func NewService(
	store storage.Store,
	templates *storage.TemplateStore,
	locator vision.Locator,
	rec *recognizer.Adapter,
	threshold float64,
	sinks ...EventSink,
) *Service {
	return &Service{
		store:     store,
		templates: templates,
		locator:   locator,
		rec:       rec,
		threshold: threshold,
		sinks:     sinks,
	}
}

// AuthResult is the outcome of one authentication attempt.
type AuthResult struct {
	Matched  bool
	Identity *models.Identity
	Distance float64
	Reason   string
}

// Enroll registers a new identity from a face image and retrains the
// classifier synchronously. The identity row is committed before the
// crop is written because the crop file is named after its id.
//
// An undecodable image is a validation failure (400), distinct from a
// decodable image with no face in it (422).
func (s *Service) Enroll(ctx context.Context, req dto.EnrollRequest) (*models.Identity, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.Image == "" {
		observability.Enrollments.WithLabelValues("validation_error").Inc()
		return nil, fmt.Errorf("%w: name and image are required", ErrValidation)
	}

	img, err := vision.DecodeImagePayload(req.Image)
	if err != nil {
		observability.Enrollments.WithLabelValues("validation_error").Inc()
		return nil, err
	}

	crop, err := s.locator.Locate(img)
	if err != nil {
		if errors.Is(err, vision.ErrNoFace) {
			observability.Enrollments.WithLabelValues("no_face").Inc()
		} else {
			observability.Enrollments.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	level := req.Level
	if level == 0 {
		level = 1
	}

	params := storage.CreateIdentityParams{Name: name, Level: level}
	if req.Email != "" {
		email := req.Email
		params.Email = &email
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			observability.Enrollments.WithLabelValues("error").Inc()
			return nil, err
		}
		params.PasswordHash = &hash
	}

	ident, err := s.store.CreateIdentity(ctx, params)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			observability.Enrollments.WithLabelValues("conflict").Inc()
		} else {
			observability.Enrollments.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	if _, err := s.templates.AddSample(ctx, ident.ID, crop); err != nil {
		observability.Enrollments.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := s.Retrain(ctx); err != nil {
		observability.Enrollments.WithLabelValues("error").Inc()
		return nil, err
	}

	observability.Enrollments.WithLabelValues("ok").Inc()
	slog.Info("identity enrolled", "id", ident.ID, "name", ident.Name, "level", ident.Level)

	s.publish(ctx, dto.FaceEvent{
		Type:       dto.EventIdentityEnrolled,
		IdentityID: ident.ID,
		Name:       ident.Name,
		Level:      ident.Level,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})

	return ident, nil
}

// Authenticate matches a presented face against the enrolled set.
// A missing face, an empty enrollment set, and a distance at or above
// the threshold are all normal negative results, not errors.
func (s *Service) Authenticate(ctx context.Context, imagePayload string) (AuthResult, error) {
	if imagePayload == "" {
		return AuthResult{}, fmt.Errorf("%w: image is required", ErrValidation)
	}

	img, err := vision.DecodeImagePayload(imagePayload)
	if err != nil {
		return AuthResult{}, err
	}

	crop, err := s.locator.Locate(img)
	if err != nil {
		if errors.Is(err, vision.ErrNoFace) {
			observability.Authentications.WithLabelValues("no_face").Inc()
			res := AuthResult{Matched: false, Reason: "no face detected"}
			s.publishAuth(ctx, res)
			return res, nil
		}
		observability.Authentications.WithLabelValues("error").Inc()
		return AuthResult{}, err
	}

	if err := s.EnsureModel(ctx); err != nil {
		observability.Authentications.WithLabelValues("error").Inc()
		return AuthResult{}, err
	}

	count, err := s.store.CountFaceSamples(ctx)
	if err != nil {
		observability.Authentications.WithLabelValues("error").Inc()
		return AuthResult{}, err
	}
	if count == 0 {
		observability.Authentications.WithLabelValues("no_users").Inc()
		res := AuthResult{Matched: false, Reason: "no users enrolled"}
		s.publishAuth(ctx, res)
		return res, nil
	}

	label, distance, err := s.rec.Predict(crop)
	if err != nil {
		if errors.Is(err, recognizer.ErrNotTrained) {
			// Sample records exist but every crop file was stale, so
			// nothing could be trained. Same answer as an empty set.
			observability.Authentications.WithLabelValues("no_users").Inc()
			res := AuthResult{Matched: false, Reason: "no users enrolled"}
			s.publishAuth(ctx, res)
			return res, nil
		}
		observability.Authentications.WithLabelValues("error").Inc()
		return AuthResult{}, err
	}

	if distance >= s.threshold {
		observability.Authentications.WithLabelValues("unmatched").Inc()
		res := AuthResult{Matched: false, Distance: distance}
		s.publishAuth(ctx, res)
		return res, nil
	}

	ident, err := s.store.GetIdentity(ctx, label)
	if err != nil {
		observability.Authentications.WithLabelValues("error").Inc()
		return AuthResult{}, err
	}
	if ident == nil {
		// Stale label: the identity behind the nearest template was
		// deleted after the last retrain.
		observability.Authentications.WithLabelValues("unmatched").Inc()
		res := AuthResult{Matched: false, Distance: distance, Reason: "user not found"}
		s.publishAuth(ctx, res)
		return res, nil
	}

	observability.Authentications.WithLabelValues("matched").Inc()
	slog.Info("face matched", "id", ident.ID, "name", ident.Name, "distance", distance)

	res := AuthResult{Matched: true, Identity: ident, Distance: distance}
	s.publishAuth(ctx, res)
	return res, nil
}

// Login is the secondary credential path; it never touches the face
// pipeline.
func (s *Service) Login(ctx context.Context, login, password string) (*models.Identity, error) {
	if login == "" || password == "" {
		return nil, fmt.Errorf("%w: login and password are required", ErrValidation)
	}

	ident, err := s.store.FindIdentityByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, storage.ErrNotFound
	}
	if ident.PasswordHash == nil {
		return nil, ErrNoPassword
	}
	if !auth.CheckPassword(password, *ident.PasswordHash) {
		return nil, ErrBadPassword
	}
	return ident, nil
}

// DeleteIdentity removes an identity with its samples and crop blobs,
// then rebuilds the classifier from what remains. With no samples left
// the model cache is removed outright.
func (s *Service) DeleteIdentity(ctx context.Context, id int64) error {
	if err := s.templates.RemoveIdentity(ctx, id); err != nil {
		return err
	}

	s.retrainMu.Lock()
	defer s.retrainMu.Unlock()

	samples, err := s.templates.Samples(ctx)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		if err := s.rec.Reset(); err != nil {
			return err
		}
	} else if err := s.trainLocked(samples); err != nil {
		return err
	}

	slog.Info("identity deleted", "id", id, "remaining_samples", len(samples))
	s.publish(ctx, dto.FaceEvent{
		Type:       dto.EventIdentityDeleted,
		IdentityID: id,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

// Retrain rebuilds the classifier from every sample currently readable
// in the template store. Retrains are serialized; there is no partial
// or incremental update.
func (s *Service) Retrain(ctx context.Context) error {
	s.retrainMu.Lock()
	defer s.retrainMu.Unlock()
	return s.retrainLocked(ctx)
}

func (s *Service) retrainLocked(ctx context.Context) error {
	samples, err := s.templates.Samples(ctx)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return ErrTrainingFailed
	}
	return s.trainLocked(samples)
}

func (s *Service) trainLocked(samples []storage.LabeledSample) error {
	start := time.Now()

	imgs := make([]*image.Gray, len(samples))
	labels := make([]int64, len(samples))
	for i, sample := range samples {
		imgs[i] = sample.Image
		labels[i] = sample.Label
	}

	if err := s.rec.Train(imgs, labels); err != nil {
		return fmt.Errorf("%w: %v", ErrTrainingFailed, err)
	}

	observability.Retrains.Inc()
	observability.RetrainDuration.Observe(time.Since(start).Seconds())
	observability.EnrolledSamples.Set(float64(len(samples)))
	slog.Debug("classifier retrained", "samples", len(samples), "took", time.Since(start).String())
	return nil
}

// EnsureModel makes the classifier ready: with no cache file it
// retrains from the template store; with a cache file newer than the
// in-memory model it reloads. Called on every authentication, so a
// restart or an out-of-process retrain is picked up without a restart
// of this path.
func (s *Service) EnsureModel(ctx context.Context) error {
	s.retrainMu.Lock()
	defer s.retrainMu.Unlock()

	fi, err := os.Stat(s.rec.Path())
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("stat model file: %w", err)
		}
		samples, err := s.templates.Samples(ctx)
		if err != nil {
			return err
		}
		if len(samples) == 0 {
			// Nothing to train on; authentication reports the empty
			// enrollment set itself.
			return nil
		}
		return s.trainLocked(samples)
	}

	if s.rec.UpToDate(fi.ModTime()) {
		return nil
	}
	return s.rec.Load()
}

// Counts returns the sample and identity totals for /health.
func (s *Service) Counts(ctx context.Context) (registered, users int, err error) {
	registered, err = s.store.CountFaceSamples(ctx)
	if err != nil {
		return 0, 0, err
	}
	users, err = s.store.CountIdentities(ctx)
	if err != nil {
		return 0, 0, err
	}
	return registered, users, nil
}

func (s *Service) publish(ctx context.Context, evt dto.FaceEvent) {
	for _, sink := range s.sinks {
		sink.Publish(ctx, evt)
	}
}

func (s *Service) publishAuth(ctx context.Context, res AuthResult) {
	evt := dto.FaceEvent{
		Type:      dto.EventAuthUnmatched,
		Reason:    res.Reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if res.Matched {
		evt.Type = dto.EventAuthMatched
		evt.IdentityID = res.Identity.ID
		evt.Name = res.Identity.Name
		evt.Level = res.Identity.Level
	}
	if res.Matched || res.Distance > 0 {
		d := res.Distance
		evt.Distance = &d
	}
	s.publish(ctx, evt)
}

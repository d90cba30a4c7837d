// Package service contains the logic that sits between the presentation
// surfaces (HTTP handlers, TUI, CLI) and the journal.
//
// THE LAYERS:
//
//	Handler / TUI / CLI  → parse input, render output
//	Service              → enforces role rules, orchestrates journal I/O
//	origin.Store         → reads/writes documents
//
// PortfolioService is the adapter between the in-memory SlideStore and the
// journal: it loads favorited documents as slides, writes edited slides
// back, stores audio notes and round-trips exports into the journal.
//
// THREADING:
// Every method touches the SlideStore, so every method must run on the
// event loop goroutine (wrap calls in loop.Do). Journal I/O is synchronous;
// it is local sqlite and small files.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/sakif/portfolio/internal/apperror"
	"github.com/sakif/portfolio/internal/export"
	"github.com/sakif/portfolio/internal/model"
	"github.com/sakif/portfolio/internal/origin"
	"github.com/sakif/portfolio/internal/preview"
	"github.com/sakif/portfolio/internal/session"
	"github.com/sakif/portfolio/internal/slidestore"
)

// DefaultTitle names the presentation when no activity title is configured.
const DefaultTitle = "Portfolio"

// PortfolioService adapts the journal to the slide store.
//
// DEPENDENCIES:
//   - journal  origin.Store        → documents (favorites, notes, exports)
//   - fs       afero.Fs            → payload files, temp files
//   - slides   *slidestore.Store   → the in-memory presentation
//   - state    *session.State      → role guard, nick, colors
//   - workDir  string              → scratch directory for exports and clips
type PortfolioService struct {
	journal origin.Store
	fs      afero.Fs
	slides  *slidestore.Store
	state   *session.State
	workDir string
	title   string
	logger  *slog.Logger
}

// NewPortfolioService wires the adapter. title is the activity title used
// for ODP exports; empty means DefaultTitle.
func NewPortfolioService(
	journal origin.Store,
	fs afero.Fs,
	slides *slidestore.Store,
	state *session.State,
	workDir string,
	title string,
	logger *slog.Logger,
) *PortfolioService {
	if title == "" {
		title = DefaultTitle
	}
	return &PortfolioService{
		journal: journal,
		fs:      fs,
		slides:  slides,
		state:   state,
		workDir: workDir,
		title:   title,
		logger:  logger,
	}
}

// Title is the activity title.
func (s *PortfolioService) Title() string { return s.title }

// =========================================================================
// RESCAN
// =========================================================================

// FindStarred reloads the favorited documents into the slide store.
//
// Every slide is first marked inactive; each favorited document then either
// reactivates its existing slide (fields overwritten, fav reset) or appends
// a new one owned by the local nick. Slides whose document disappeared stay
// in the store, inactive. Returns the number of documents seen.
func (s *PortfolioService) FindStarred(ctx context.Context) (int, error) {
	if !s.state.Authoritative() {
		return 0, apperror.Forbidden("guests cannot rescan the journal")
	}

	s.slides.MarkAllInactive()

	docs, count, err := s.journal.Find(ctx, origin.Filter{Keep: true})
	if err != nil {
		return 0, fmt.Errorf("service/portfolio: finding favorites: %w", err)
	}

	for _, doc := range docs {
		if err := s.reconcile(doc); err != nil {
			s.logger.Warn("skipping document", slog.String("id", doc.ID), slog.String("error", err.Error()))
		}
	}

	s.logger.Info("journal rescanned",
		slog.Int("documents", count),
		slog.Int("active", s.slides.CountActive()),
	)
	return count, nil
}

func (s *PortfolioService) reconcile(doc *model.Document) error {
	title := doc.Meta(model.MetaTitle)
	description := doc.Meta(model.MetaDescription)
	comments := decodeComments(doc.Meta(model.MetaComments))
	img := s.documentPreview(doc)

	if slide := s.slides.Find(doc.ID); slide != nil {
		slide.Title = title
		slide.Description = description
		slide.Comments = comments
		slide.Preview = img
		slide.Active = true
		slide.Fav = true
		return nil
	}

	return s.slides.Append(model.NewSlide(doc.ID, s.state.Nick, s.state.Colors, title, description, comments, img))
}

// documentPreview prefers the payload for image documents and falls back to
// the stored thumbnail. Anything undecodable means no preview.
func (s *PortfolioService) documentPreview(doc *model.Document) image.Image {
	if doc.IsImage() && doc.FilePath != "" {
		if img := preview.Load(s.fs, doc.FilePath, preview.Width, preview.Height); img != nil {
			return img
		}
	}
	if b64 := doc.Meta(model.MetaPreview); b64 != "" {
		return preview.FromBase64(b64)
	}
	return nil
}

func decodeComments(raw string) []model.Comment {
	if raw == "" {
		return nil
	}
	var comments []model.Comment
	if err := json.Unmarshal([]byte(raw), &comments); err != nil {
		return nil
	}
	return comments
}

// =========================================================================
// SAVE
// =========================================================================

// SaveChanges writes title, description and comments of every dirty slide
// back to its document, keeping the document mtime. Writes are independent:
// a failure leaves that slide dirty and the rest are still attempted. All
// failures are returned joined.
func (s *PortfolioService) SaveChanges(ctx context.Context) (int, error) {
	if !s.state.Authoritative() {
		s.logger.Debug("joiner, not saving")
		return 0, nil
	}

	var (
		saved int
		errs  []error
	)
	for _, slide := range s.slides.All() {
		if !slide.Dirty {
			continue
		}
		if err := s.saveSlide(ctx, slide); err != nil {
			s.logger.Error("saving slide failed", slog.String("uid", slide.UID), slog.String("error", err.Error()))
			errs = append(errs, err)
			continue
		}
		slide.Dirty = false
		saved++
	}

	if saved > 0 {
		s.logger.Info("slides saved", slog.Int("count", saved))
	}
	return saved, errors.Join(errs...)
}

func (s *PortfolioService) saveSlide(ctx context.Context, slide *model.Slide) error {
	doc, err := s.journal.Get(ctx, slide.UID)
	if err != nil {
		return fmt.Errorf("service/portfolio: loading %s: %w", slide.UID, err)
	}

	comments, err := json.Marshal(slide.Comments)
	if err != nil {
		return fmt.Errorf("service/portfolio: encoding comments of %s: %w", slide.UID, err)
	}
	if slide.Comments == nil {
		comments = []byte("[]")
	}

	doc.SetMeta(model.MetaTitle, slide.Title)
	doc.SetMeta(model.MetaDescription, slide.Description)
	doc.SetMeta(model.MetaComments, string(comments))

	if err := s.journal.Write(ctx, doc, origin.WriteOptions{PreserveMtime: true}); err != nil {
		return fmt.Errorf("service/portfolio: writing %s: %w", slide.UID, err)
	}
	return nil
}

// =========================================================================
// AUDIO NOTES
// =========================================================================

// SearchAudioNote resolves the audio note of a slide and caches it on the
// slide. Guests never look anything up; the journal is not theirs.
func (s *PortfolioService) SearchAudioNote(ctx context.Context, slide *model.Slide) (*model.Sound, error) {
	if slide.Sound != nil {
		return slide.Sound, nil
	}
	if !s.state.Authoritative() {
		return nil, nil
	}

	doc, err := s.findAudioNote(ctx, slide.UID)
	if err != nil || doc == nil {
		return nil, err
	}
	slide.Sound = &model.Sound{DocumentID: doc.ID, FilePath: doc.FilePath}
	return slide.Sound, nil
}

func (s *PortfolioService) findAudioNote(ctx context.Context, uid string) (*model.Document, error) {
	docs, _, err := s.journal.Find(ctx, origin.Filter{
		MimeTypes:   []string{model.MimeAudioOgg},
		TagContains: uid,
	})
	if err != nil {
		return nil, fmt.Errorf("service/portfolio: finding audio note for %s: %w", uid, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// SaveRecording stores a finished clip as the audio note of slide. The clip
// is copied to <uid>.ogg in the work directory first; an existing note
// document is reused so each slide has at most one.
func (s *PortfolioService) SaveRecording(ctx context.Context, slide *model.Slide, clipPath string) (*model.Sound, error) {
	if !s.state.Authoritative() {
		return nil, apperror.Forbidden("guests cannot record audio notes")
	}

	named := path.Join(filepath.ToSlash(s.workDir), slide.UID+".ogg")
	if err := s.copyFile(clipPath, named); err != nil {
		return nil, fmt.Errorf("service/portfolio: staging clip for %s: %w", slide.UID, err)
	}
	defer s.fs.Remove(named)

	doc, err := s.findAudioNote(ctx, slide.UID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		if doc, err = s.journal.Create(ctx); err != nil {
			return nil, fmt.Errorf("service/portfolio: creating audio note: %w", err)
		}
	}

	doc.SetMeta(model.MetaTitle, "audio note for "+slide.Title)
	doc.SetMeta(model.MetaIconColor, s.state.MyColors.String())
	doc.SetMeta(model.MetaTags, slide.UID)
	doc.SetMeta(model.MetaMimeType, model.MimeAudioOgg)
	doc.FilePath = named

	if err := s.journal.Write(ctx, doc, origin.WriteOptions{}); err != nil {
		return nil, fmt.Errorf("service/portfolio: writing audio note for %s: %w", slide.UID, err)
	}

	slide.Sound = &model.Sound{DocumentID: doc.ID, FilePath: doc.FilePath}
	s.logger.Info("audio note saved", slog.String("uid", slide.UID), slog.String("document", doc.ID))
	return slide.Sound, nil
}

// =========================================================================
// EXPORT
// =========================================================================

// Export renders the displayable slides in format f and stores the result
// in the journal as a new document. The document is returned.
func (s *PortfolioService) Export(ctx context.Context, f export.Format) (*model.Document, error) {
	deck := s.Deck(ctx)
	if len(deck.Pages) == 0 {
		return nil, apperror.ValidationFailed("slides", "nothing to export")
	}

	if err := s.fs.MkdirAll(s.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("service/portfolio: creating work dir: %w", err)
	}
	tmp, err := afero.TempFile(s.fs, s.workDir, "export-*"+f.Ext())
	if err != nil {
		return nil, fmt.Errorf("service/portfolio: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer s.fs.Remove(tmpPath)

	if err := export.Render(tmp, f, deck); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("service/portfolio: rendering %s: %w", f, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("service/portfolio: closing temp file: %w", err)
	}

	doc, err := s.journal.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/portfolio: creating export document: %w", err)
	}
	doc.SetMeta(model.MetaTitle, f.DocumentTitle(deck))
	doc.SetMeta(model.MetaMimeType, f.MimeType())
	doc.SetMeta(model.MetaIconColor, s.state.MyColors.String())
	doc.FilePath = tmpPath

	if err := s.journal.Write(ctx, doc, origin.WriteOptions{}); err != nil {
		return nil, fmt.Errorf("service/portfolio: writing export: %w", err)
	}

	s.logger.Info("portfolio exported",
		slog.String("format", string(f)),
		slog.String("document", doc.ID),
		slog.Int("slides", len(deck.Pages)),
	)
	return doc, nil
}

// Deck builds the read-only view the exporters consume. Guests export under
// the host's name. Audio notes are only attached where the journal is ours.
func (s *PortfolioService) Deck(ctx context.Context) export.Deck {
	deck := export.Deck{
		Nick:   s.state.PresenterNick(),
		Title:  s.title,
		Colors: s.state.Colors,
	}
	for _, slide := range s.slides.Displayable() {
		page := export.Page{
			UID:         slide.UID,
			Title:       slide.Title,
			Description: slide.Description,
			Comments:    slide.Comments,
			Preview:     slide.Preview,
		}
		if snd, err := s.SearchAudioNote(ctx, slide); err == nil && snd != nil {
			if data, err := afero.ReadFile(s.fs, snd.FilePath); err == nil {
				page.Audio = data
			}
		}
		deck.Pages = append(deck.Pages, page)
	}
	return deck
}

// =========================================================================
// JOURNAL MAINTENANCE
// =========================================================================

// ImportOptions are the metadata given to imported files.
type ImportOptions struct {
	Title       string // empty: the file name without extension
	Description string
	Star        bool
}

// Import copies a file into the journal. Image files get a stored thumbnail
// as well, so they preview even if the payload later goes missing.
func (s *PortfolioService) Import(ctx context.Context, filePath string, opts ImportOptions) (*model.Document, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, apperror.ValidationFailed("path", "file path is required")
	}

	doc, err := s.journal.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/portfolio: creating document: %w", err)
	}

	base := filepath.Base(filePath)
	title := opts.Title
	if title == "" {
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(base)))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	doc.SetMeta(model.MetaTitle, title)
	doc.SetMeta(model.MetaDescription, opts.Description)
	doc.SetMeta(model.MetaMimeType, mimeType)
	doc.SetMeta(model.MetaIconColor, s.state.MyColors.String())
	if opts.Star {
		doc.SetMeta(model.MetaKeep, "1")
	} else {
		doc.SetMeta(model.MetaKeep, "0")
	}
	if doc.IsImage() {
		if img := preview.Load(s.fs, filePath, preview.Width, preview.Height); img != nil {
			if b64, err := preview.ToBase64(img, preview.Width, preview.Height); err == nil {
				doc.SetMeta(model.MetaPreview, b64)
			}
		}
	}
	doc.FilePath = filePath

	if err := s.journal.Write(ctx, doc, origin.WriteOptions{}); err != nil {
		return nil, fmt.Errorf("service/portfolio: importing %s: %w", base, err)
	}

	s.logger.Info("document imported", slog.String("id", doc.ID), slog.String("title", title))
	return doc, nil
}

// List returns every journal document, oldest first.
func (s *PortfolioService) List(ctx context.Context) ([]*model.Document, error) {
	docs, _, err := s.journal.Find(ctx, origin.Filter{})
	if err != nil {
		return nil, fmt.Errorf("service/portfolio: listing journal: %w", err)
	}
	return docs, nil
}

// Remove destroys a journal document. A slide backed by it stays in the
// store until the next rescan marks it inactive.
func (s *PortfolioService) Remove(ctx context.Context, id string) error {
	if id == "" {
		return apperror.ValidationFailed("id", "document id is required")
	}
	if !s.state.Authoritative() {
		return apperror.Forbidden("guests cannot modify the journal")
	}
	if err := s.journal.Destroy(ctx, id); err != nil {
		return fmt.Errorf("service/portfolio: removing %s: %w", id, err)
	}
	s.logger.Info("document removed", slog.String("id", id))
	return nil
}

func (s *PortfolioService) copyFile(src, dst string) error {
	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	data, err := afero.ReadFile(s.fs, src)
	if err != nil {
		return err
	}
	return afero.WriteFile(s.fs, dst, data, 0o644)
}

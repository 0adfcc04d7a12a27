package play

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/huddle/core"
)

type Category string

const (
	CategoryOffensive Category = "OFFENSIVE"
	CategoryDefensive Category = "DEFENSIVE"
	CategorySetPiece  Category = "SET_PIECE"
)

var Categories = []Category{CategoryOffensive, CategoryDefensive, CategorySetPiece}

func (c Category) IsValid() bool {
	for _, cat := range Categories {
		if c == cat {
			return true
		}
	}
	return false
}

const DefaultFrameDuration = 1.0

// Point is a position on the court, in court units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type PlayerPosition struct {
	PlayerID string  `json:"playerId"`
	Label    string  `json:"label"`
	Team     string  `json:"team" validate:"omitempty,oneof=offense defense"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation,omitempty"`
}

// Line connects points of the court: a pass, a cut, a screen...
type Line struct {
	Kind   string  `json:"kind"` // pass | cut | screen | dribble
	Points []Point `json:"points"`
	Color  string  `json:"color,omitempty"`
	Dashed bool    `json:"dashed,omitempty"`
}

type Annotation struct {
	Kind   string  `json:"kind" validate:"required,oneof=text drawing"`
	Text   string  `json:"text,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Points []Point `json:"points"`
	Color  string  `json:"color,omitempty"`
}

type Frame struct {
	ID          string           `json:"id"`
	PlayID      string           `json:"playId"`
	FrameNumber int              `json:"frameNumber"`
	Duration    float64          `json:"duration"`
	Positions   []PlayerPosition `json:"positions"`
	Lines       []Line           `json:"lines"`
	Annotations []Annotation     `json:"annotations"`
	Ball        *Point           `json:"ball"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// normalize replaces nil content arrays with empty ones and applies the default duration.
func (f *Frame) normalize() {
	if f.Duration <= 0 {
		f.Duration = DefaultFrameDuration
	}
	if f.Positions == nil {
		f.Positions = []PlayerPosition{}
	}
	if f.Lines == nil {
		f.Lines = []Line{}
	}
	if f.Annotations == nil {
		f.Annotations = []Annotation{}
	}
	for i := range f.Lines {
		if f.Lines[i].Points == nil {
			f.Lines[i].Points = []Point{}
		}
	}
	for i := range f.Annotations {
		if f.Annotations[i].Points == nil {
			f.Annotations[i].Points = []Point{}
		}
	}
}

// copyContent returns a new, unsaved frame carrying the content of f.
func (f Frame) copyContent() Frame {
	cp := Frame{
		Duration:    f.Duration,
		Positions:   append([]PlayerPosition{}, f.Positions...),
		Lines:       make([]Line, len(f.Lines)),
		Annotations: make([]Annotation, len(f.Annotations)),
	}
	for i, l := range f.Lines {
		l.Points = append([]Point{}, l.Points...)
		cp.Lines[i] = l
	}
	for i, a := range f.Annotations {
		a.Points = append([]Point{}, a.Points...)
		cp.Annotations[i] = a
	}
	if f.Ball != nil {
		ball := *f.Ball
		cp.Ball = &ball
	}
	return cp
}

type Play struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	Tags        []string  `json:"tags"`
	IsPublished bool      `json:"isPublished"`
	TeamID      string    `json:"teamId"`
	CreatedBy   string    `json:"createdBy"`
	PlaybookID  *string   `json:"playbookId"`
	Version     int64     `json:"version"`
	Frames      []Frame   `json:"frames"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Playbook struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	TeamID      string    `json:"teamId"`
	CreatedBy   string    `json:"createdBy"`
	Plays       []Play    `json:"plays,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// FrameContent is the editable content of a Frame.
// A nil array leaves the matching content untouched on update.
type FrameContent struct {
	Duration    *float64         `json:"duration" validate:"omitempty,gt=0,lte=60"`
	Positions   []PlayerPosition `json:"positions" validate:"omitempty,dive"`
	Lines       []Line           `json:"lines"`
	Annotations []Annotation     `json:"annotations" validate:"omitempty,dive"`
	Ball        *Point           `json:"ball"`
}

func (fc FrameContent) apply(f *Frame) {
	if fc.Duration != nil {
		f.Duration = *fc.Duration
	}
	if fc.Positions != nil {
		f.Positions = fc.Positions
	}
	if fc.Lines != nil {
		f.Lines = fc.Lines
	}
	if fc.Annotations != nil {
		f.Annotations = fc.Annotations
	}
	if fc.Ball != nil {
		ball := *fc.Ball
		f.Ball = &ball
	}
}

func (fc FrameContent) toFrame() Frame {
	var f Frame
	fc.apply(&f)
	f.normalize()
	return f
}

// FrameInput is a frame of a full frame list: an existing frame when FrameID matches one of the play, a new one otherwise.
type FrameInput struct {
	FrameID string `json:"id"`
	FrameContent
}

// NewFrame inserts a frame at FrameNumber (appended when absent or past the end).
type NewFrame struct {
	FrameNumber *int   `json:"frameNumber" validate:"omitempty,gte=0"`
	Version     *int64 `json:"version"`
	FrameContent
}

func (nf NewFrame) Validate(validate *validator.Validate) error { return validate.Struct(nf) }

// UpdateFrame edits a frame's content; a different FrameNumber moves it.
type UpdateFrame struct {
	FrameNumber *int   `json:"frameNumber" validate:"omitempty,gte=0"`
	Version     *int64 `json:"version"`
	FrameContent
}

func (uf UpdateFrame) Validate(validate *validator.Validate) error { return validate.Struct(uf) }

// FrameOrder gives a frame of the play its new position, and optionally new content.
type FrameOrder struct {
	FrameID     string `json:"id" validate:"required"`
	FrameNumber int    `json:"frameNumber" validate:"gte=0"`
	FrameContent
}

type ReorderFrames struct {
	Frames  []FrameOrder `json:"frames" validate:"required,dive"`
	Version *int64       `json:"version"`
}

func (rf ReorderFrames) Validate(validate *validator.Validate) error { return validate.Struct(rf) }

type NewPlay struct {
	Name        string         `json:"name" validate:"required,notblank,max=200"`
	Description string         `json:"description"`
	Category    Category       `json:"category" validate:"required,playcategory"`
	Tags        []string       `json:"tags"`
	IsPublished bool           `json:"isPublished"`
	TeamID      string         `json:"teamId"`
	PlaybookID  *string        `json:"playbookId"`
	Frames      []FrameContent `json:"frames" validate:"omitempty,dive"`
}

func (np *NewPlay) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.Description = core.CleanString(np.Description)
	np.Tags = cleanTags(np.Tags)
	np.TeamID = core.CleanString(np.TeamID)
	return validate.Struct(np)
}

// UpdatePlay defines what may be changed on an existing Play. Absent fields are left untouched.
// When Frames is present, the play's frames become exactly that list, in that order.
type UpdatePlay struct {
	Name        *string       `json:"name" validate:"omitempty,notblank,max=200"`
	Description *string       `json:"description"`
	Category    *Category     `json:"category" validate:"omitempty,playcategory"`
	Tags        []string      `json:"tags"`
	IsPublished *bool         `json:"isPublished"`
	PlaybookID  *string       `json:"playbookId"` // "" detaches the play
	Version     *int64        `json:"version"`
	Frames      *[]FrameInput `json:"frames" validate:"omitempty,dive"`
}

func (up *UpdatePlay) Validate(validate *validator.Validate) error {
	if up.Name != nil {
		name := core.CleanString(*up.Name)
		up.Name = &name
	}
	if up.Tags != nil {
		up.Tags = cleanTags(up.Tags)
	}
	return validate.Struct(up)
}

type DuplicatePlay struct {
	NewName string `json:"newName" validate:"omitempty,max=200"`
}

func (dp *DuplicatePlay) Validate(validate *validator.Validate) error {
	dp.NewName = core.CleanString(dp.NewName)
	return validate.Struct(dp)
}

type NewPlaybook struct {
	Name        string `json:"name" validate:"required,notblank,max=200"`
	Description string `json:"description"`
	TeamID      string `json:"teamId"`
}

func (nb *NewPlaybook) Validate(validate *validator.Validate) error {
	nb.Name = core.CleanString(nb.Name)
	nb.Description = core.CleanString(nb.Description)
	nb.TeamID = core.CleanString(nb.TeamID)
	return validate.Struct(nb)
}

type UpdatePlaybook struct {
	Name        *string `json:"name" validate:"omitempty,notblank,max=200"`
	Description *string `json:"description"`
}

func (ub *UpdatePlaybook) Validate(validate *validator.Validate) error {
	if ub.Name != nil {
		name := core.CleanString(*ub.Name)
		ub.Name = &name
	}
	return validate.Struct(ub)
}

type QueryFilter struct {
	Search      string   `query:"search"`
	TeamID      string   `query:"teamId"`
	Category    Category `query:"category"`
	Tag         string   `query:"tag"`
	PlaybookID  string   `query:"playbookId"`
	CreatedBy   string   `query:"createdBy"`
	IsPublished *bool    `query:"isPublished"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.TeamID = core.CleanString(qf.TeamID)
	qf.Tag = core.CleanString(qf.Tag, true /* lower */)
	qf.PlaybookID = core.CleanString(qf.PlaybookID)
	qf.CreatedBy = core.CleanString(qf.CreatedBy)
}

type PlaybookFilter struct {
	Search string `query:"search"`
	TeamID string `query:"teamId"`
}

// cleanTags lower-cases tags and drops blanks & duplicates, keeping the first occurrence order.
func cleanTags(tags []string) []string {
	cleaned := core.CleanStrings(tags, true /* lower */)
	seen := make(map[string]struct{}, len(cleaned))
	uniq := make([]string, 0, len(cleaned))
	for _, tag := range cleaned {
		if _, ok := seen[tag]; !ok {
			seen[tag] = struct{}{}
			uniq = append(uniq, tag)
		}
	}
	return uniq
}

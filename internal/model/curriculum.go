package model

type ContentKind string

const (
	ContentVideo      ContentKind = "VIDEO"
	ContentArticle    ContentKind = "ARTICLE"
	ContentQuiz       ContentKind = "QUIZ"
	ContentAssessment ContentKind = "ASSESSMENT"
)

// CurriculumModule is an ordered container of lessons inside a course.
// swagger:model CurriculumModule
type CurriculumModule struct {
	BaseModel
	CourseID     uint     `gorm:"index;type:bigint unsigned;not null" json:"courseId"`
	Title        string   `gorm:"size:255;not null" json:"title"`
	SortOrder    int      `gorm:"default:0" json:"sortOrder"`
	AssessmentID *uint    `gorm:"type:bigint unsigned" json:"assessmentId,omitempty"` // module assessment
	Lessons      []Lesson `gorm:"foreignKey:ModuleID" json:"lessons,omitempty"`
}

func (CurriculumModule) TableName() string {
	return "curriculum_modules"
}

// swagger:model Lesson
type Lesson struct {
	BaseModel
	ModuleID             uint        `gorm:"uniqueIndex:idx_module_sort;type:bigint unsigned;not null" json:"moduleId"`
	Title                string      `gorm:"size:255;not null" json:"title"`
	ContentKind          ContentKind `gorm:"size:20;not null" json:"contentKind"`
	SortOrder            int         `gorm:"uniqueIndex:idx_module_sort" json:"sortOrder"`
	AssessmentID         *uint       `gorm:"type:bigint unsigned" json:"assessmentId,omitempty"` // embedded quiz
	VideoURL             string      `gorm:"size:512" json:"videoUrl,omitempty"`
	VideoDurationSeconds int         `gorm:"default:0" json:"videoDurationSeconds"`
}

func (Lesson) TableName() string {
	return "lessons"
}

// Curriculum is the read-only course tree the engine computes against.
type Curriculum struct {
	Course      Course                        `json:"course"`
	Modules     []CurriculumModule            `json:"modules"`
	Assessments map[uint]Assessment           `json:"assessments"`
	Questions   map[uint][]AssessmentQuestion `json:"questions"`
}

// FinalAssessment returns the course final, if the curriculum has one.
func (c *Curriculum) FinalAssessment() *Assessment {
	var final *Assessment
	for id := range c.Assessments {
		a := c.Assessments[id]
		if a.Level != LevelCourseFinal {
			continue
		}
		if final == nil || a.ID < final.ID {
			final = &a
		}
	}
	return final
}

// AssessmentIDs lists every assessment reachable from the curriculum in a stable order.
func (c *Curriculum) AssessmentIDs() []uint {
	seen := make(map[uint]bool)
	var ids []uint
	add := func(id *uint) {
		if id == nil || seen[*id] {
			return
		}
		if _, ok := c.Assessments[*id]; !ok {
			return
		}
		seen[*id] = true
		ids = append(ids, *id)
	}
	for _, m := range c.Modules {
		for _, l := range m.Lessons {
			add(l.AssessmentID)
		}
		add(m.AssessmentID)
	}
	if f := c.FinalAssessment(); f != nil {
		id := f.ID
		add(&id)
	}
	return ids
}

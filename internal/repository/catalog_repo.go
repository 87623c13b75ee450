package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/explab-api/internal/models"
)

// CatalogRepository reads the experiment and task catalog.
type CatalogRepository interface {
	FindTaskByID(ctx context.Context, id uint) (models.Task, error)
	FindExperimentByID(ctx context.Context, id uint) (models.Experiment, error)
}

// CatalogWriter loads catalog content. The evaluation pipeline never writes
// the catalog; this is used by the seed command only.
type CatalogWriter interface {
	UpsertCatalog(ctx context.Context, experiment *models.Experiment, tasks []models.Task, questions []models.Question) (int64, error)
}

type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository instantiates the repository.
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

// NewCatalogWriter instantiates the catalog loader.
func NewCatalogWriter(db *gorm.DB) CatalogWriter {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) FindTaskByID(ctx context.Context, id uint) (models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (r *catalogRepository) FindExperimentByID(ctx context.Context, id uint) (models.Experiment, error) {
	var experiment models.Experiment
	if err := r.db.WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&experiment, id).Error; err != nil {
		return models.Experiment{}, err
	}
	return experiment, nil
}

// UpsertCatalog writes one experiment with its tasks and the questions they
// reference in a single transaction. Rows are matched by primary key.
func (r *catalogRepository) UpsertCatalog(ctx context.Context, experiment *models.Experiment, tasks []models.Task, questions []models.Question) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "description", "updated_at"}),
		}).Omit("Tasks").Create(experiment)
		if result.Error != nil {
			return result.Error
		}
		affected += result.RowsAffected

		if len(questions) > 0 {
			result = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"content", "answer", "updated_at"}),
			}).Create(&questions)
			if result.Error != nil {
				return result.Error
			}
			affected += result.RowsAffected
		}

		for i := range tasks {
			tasks[i].ExperimentID = experiment.ID
		}
		if len(tasks) > 0 {
			result = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"experiment_id", "title", "type", "position", "required", "question_ids", "updated_at"}),
			}).Create(&tasks)
			if result.Error != nil {
				return result.Error
			}
			affected += result.RowsAffected
		}
		return nil
	})
	return affected, err
}

package versions

import (
	"log"

	"gorm.io/gorm"
)

// Earlier deployments stored only the question images, one row per image with
// no grouping. This migration adds the kind/position grouping used by the
// answer and chat screenshot groups, backfilling existing rows as question
// images in insertion order.
func Migration_1_image_kinds(txn *gorm.DB) error {
	log.Println("migrating table 'question_images'")

	type QuestionImage struct {
		Kind     string `gorm:"size:20;not null;default:'question'"`
		Position int    `gorm:"not null;default:0"`
	}

	if err := txn.Migrator().AddColumn(&QuestionImage{}, "Kind"); err != nil {
		return err
	}

	if err := txn.Migrator().AddColumn(&QuestionImage{}, "Position"); err != nil {
		return err
	}

	err := txn.Exec(`
		UPDATE question_images SET position = numbered.rn - 1
		FROM (
			SELECT id, ROW_NUMBER() OVER (PARTITION BY question_id ORDER BY id) AS rn
			FROM question_images
		) AS numbered
		WHERE question_images.id = numbered.id
	`).Error
	if err != nil {
		return err
	}

	log.Println("table 'question_images' migration complete")

	return nil
}

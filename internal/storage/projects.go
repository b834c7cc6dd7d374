package storage

import (
	"fmt"

	"techpaint/internal/models"

	"go.etcd.io/bbolt"
)

// CreateProject stores a new project and returns it with its assigned ID.
func (s *BboltStorage) CreateProject(p models.Project) (models.Project, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		p.ID = int64(id)

		dbProject := &DBProject{
			ID:           p.ID,
			UserID:       p.UserID,
			Title:        p.Title,
			Description:  p.Description,
			GitHubURL:    p.GitHubURL,
			Technologies: p.Technologies,
			CreatedAt:    p.CreatedAt,
		}
		data, err := dbProject.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal project: %w", err)
		}
		if err := b.Put(dbProject.Key(), data); err != nil {
			return err
		}

		p, err = loadProject(tx, dbProject, "")
		return err
	})
	return p, err
}

func (s *BboltStorage) GetProject(id int64, viewerID string) (models.Project, error) {
	var p models.Project
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketProjects).Get(seqKey(uint64(id)))
		if data == nil {
			return models.ErrNotFound
		}
		var dbProject DBProject
		if err := dbProject.UnmarshalBinary(data); err != nil {
			return err
		}
		var err error
		p, err = loadProject(tx, &dbProject, viewerID)
		return err
	})
	return p, err
}

// ListProjects returns the feed, newest first, with vote counts and the
// viewer's own vote filled in.
func (s *BboltStorage) ListProjects(viewerID string) ([]models.Project, error) {
	projects := []models.Project{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketProjects).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var dbProject DBProject
			if err := dbProject.UnmarshalBinary(v); err != nil {
				return err
			}
			p, err := loadProject(tx, &dbProject, viewerID)
			if err != nil {
				return err
			}
			projects = append(projects, p)
		}
		return nil
	})
	return projects, err
}

func loadProject(tx *bbolt.Tx, dbProject *DBProject, viewerID string) (models.Project, error) {
	p := models.Project{
		ID:           dbProject.ID,
		UserID:       dbProject.UserID,
		Title:        dbProject.Title,
		Description:  dbProject.Description,
		GitHubURL:    dbProject.GitHubURL,
		Technologies: dbProject.Technologies,
		CreatedAt:    dbProject.CreatedAt,
	}
	if author, err := getUser(tx, dbProject.UserID); err == nil {
		p.UserName = author.Name
		p.UserArea = author.Area
	}

	result := countVotes(tx.Bucket(bucketVotes).Bucket(dbProject.Key()), viewerID)
	p.Likes = result.Likes
	p.Dislikes = result.Dislikes
	p.UserVote = result.UserVote
	return p, nil
}

func countVotes(votes *bbolt.Bucket, viewerID string) models.VoteResult {
	var result models.VoteResult
	if votes == nil {
		return result
	}
	_ = votes.ForEach(func(k, v []byte) error {
		switch models.VoteType(v) {
		case models.VoteLike:
			result.Likes++
		case models.VoteDislike:
			result.Dislikes++
		}
		if string(k) == viewerID {
			result.UserVote = models.VoteType(v)
		}
		return nil
	})
	return result
}

// Vote toggles the user's vote on a project:
// - no previous vote: the vote is recorded
// - same vote again: the vote is removed
// - opposite vote: the vote is switched
func (s *BboltStorage) Vote(projectID int64, userID string, vote models.VoteType) (models.VoteResult, error) {
	if !vote.Valid() {
		return models.VoteResult{}, fmt.Errorf("invalid vote type %q", vote)
	}

	var result models.VoteResult
	err := s.db.Update(func(tx *bbolt.Tx) error {
		key := seqKey(uint64(projectID))
		if tx.Bucket(bucketProjects).Get(key) == nil {
			return models.ErrNotFound
		}
		votes, err := tx.Bucket(bucketVotes).CreateBucketIfNotExists(key)
		if err != nil {
			return err
		}

		prev := votes.Get([]byte(userID))
		if models.VoteType(prev) == vote {
			err = votes.Delete([]byte(userID))
		} else {
			err = votes.Put([]byte(userID), []byte(vote))
		}
		if err != nil {
			return err
		}

		result = countVotes(votes, userID)
		return nil
	})
	return result, err
}

func (s *BboltStorage) AddComment(c models.Comment) (models.Comment, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		key := seqKey(uint64(c.ProjectID))
		if tx.Bucket(bucketProjects).Get(key) == nil {
			return models.ErrNotFound
		}
		comments, err := tx.Bucket(bucketComments).CreateBucketIfNotExists(key)
		if err != nil {
			return err
		}
		id, err := comments.NextSequence()
		if err != nil {
			return err
		}
		c.ID = int64(id)

		dbComment := &DBComment{
			ID:        c.ID,
			ProjectID: c.ProjectID,
			UserID:    c.UserID,
			Text:      c.Text,
			CreatedAt: c.CreatedAt,
		}
		data, err := dbComment.MarshalBinary()
		if err != nil {
			return err
		}
		if err := comments.Put(dbComment.Key(), data); err != nil {
			return err
		}

		if author, err := getUser(tx, c.UserID); err == nil {
			c.UserName = author.Name
		}
		return nil
	})
	return c, err
}

// ListComments returns project comments oldest first.
func (s *BboltStorage) ListComments(projectID int64) ([]models.Comment, error) {
	comments := []models.Comment{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := seqKey(uint64(projectID))
		if tx.Bucket(bucketProjects).Get(key) == nil {
			return models.ErrNotFound
		}
		b := tx.Bucket(bucketComments).Bucket(key)
		if b == nil {
			return nil
		}
		names := make(map[string]string)
		return b.ForEach(func(k, v []byte) error {
			var dbComment DBComment
			if err := dbComment.UnmarshalBinary(v); err != nil {
				return err
			}
			name, ok := names[dbComment.UserID]
			if !ok {
				if author, err := getUser(tx, dbComment.UserID); err == nil {
					name = author.Name
				}
				names[dbComment.UserID] = name
			}
			comments = append(comments, models.Comment{
				ID:        dbComment.ID,
				ProjectID: dbComment.ProjectID,
				UserID:    dbComment.UserID,
				UserName:  name,
				Text:      dbComment.Text,
				CreatedAt: dbComment.CreatedAt,
			})
			return nil
		})
	})
	return comments, err
}

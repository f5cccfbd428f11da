package postgres

import (
	"github.com/jackc/pgx/v4/pgxpool"

	"poetry-pipeline/internal/domain/ports/repository"
)

// Repositories bundles every store implementation over one pool.
type Repositories struct {
	Jobs         repository.JobRepository
	Logs         repository.ActionLogRepository
	Poems        repository.PoemRepository
	Commentaries repository.CommentaryRepository
	Syntheses    repository.SynthesisRepository
	Publications repository.PublicationRepository
	Media        repository.MediaRepository
	Registry     repository.RegistryRepository
	Tx           repository.TransactionManager
}

func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Jobs:         NewJobRepo(pool),
		Logs:         NewActionLogRepo(pool),
		Poems:        NewPoemRepo(pool),
		Commentaries: NewCommentaryRepo(pool),
		Syntheses:    NewSynthesisRepo(pool),
		Publications: NewPublicationRepo(pool),
		Media:        NewMediaRepo(pool),
		Registry:     NewRegistryRepo(pool),
		Tx:           NewTxManager(pool),
	}
}

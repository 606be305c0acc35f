package repository

import (
	"automation-scheduler/config"
	"automation-scheduler/pkg/datasource"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"

	"gorm.io/gorm"
)

type Repository struct {
	ScheduleRepo         ScheduleRepository
	JobExecutionRepo     JobExecutionRepository
	JobParameterRepo     JobParameterRepository
	AdrAccountRepo       AdrAccountRepository
	AdrJobRepo           AdrJobRepository
	AdrJobExecutionRepo  AdrJobExecutionRepository
	AdrRunRepo           AdrOrchestrationRunRepository
	AdrVendorRepo        AdrVendorRepository
	CredentialRepo       CredentialRepository
	AdrAccountSourceRepo AdrAccountSourceRepository
	UnitOfWork           UnitOfWork
}

func NewRepository(cfg *config.Config, db *gorm.DB, registry datasource.Registry, log *logger.Logger) *Repository {
	return &Repository{
		ScheduleRepo:         NewScheduleRepository(db),
		JobExecutionRepo:     NewJobExecutionRepository(db),
		JobParameterRepo:     NewJobParameterRepository(db),
		AdrAccountRepo:       NewAdrAccountRepository(db),
		AdrJobRepo:           NewAdrJobRepository(db),
		AdrJobExecutionRepo:  NewAdrJobExecutionRepository(db),
		AdrRunRepo:           NewAdrOrchestrationRunRepository(db),
		AdrVendorRepo:        NewAdrVendorRepository(cfg, log),
		CredentialRepo:       NewCredentialRepository(cfg, log),
		AdrAccountSourceRepo: NewAdrAccountSourceRepository(cfg, registry),
		UnitOfWork:           NewUnitOfWork(db),
	}
}

// notFound marks gorm.ErrRecordNotFound as errors.ErrNotFound and passes any
// other error through.
func notFound(err error, what string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Mark(errors.Newf("%s %v not found", what, id), errors.ErrNotFound)
	}
	return errors.Wrapf(err, "load %s %v", what, id)
}

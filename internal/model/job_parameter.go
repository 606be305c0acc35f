package model

import (
	"time"

	"gorm.io/gorm"
)

// JobParameter is a named value substituted into a job configuration. Dynamic
// parameters are resolved at fire time by calling SourceQuery, a routine name,
// on the named auxiliary SourceConnection.
type JobParameter struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	ScheduleID       uint           `gorm:"not null;index" json:"schedule_id"`
	ParameterName    string         `gorm:"type:varchar(100);not null" json:"parameter_name"`
	ParameterValue   string         `gorm:"type:text" json:"parameter_value"`
	IsDynamic        bool           `gorm:"not null" json:"is_dynamic"`
	SourceQuery      string         `gorm:"type:varchar(255)" json:"source_query"`
	SourceConnection string         `gorm:"type:varchar(100)" json:"source_connection"`
	DataType         string         `gorm:"type:varchar(20)" json:"data_type"`
	DisplayOrder     int            `gorm:"not null" json:"display_order"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (JobParameter) TableName() string {
	return "job_parameters"
}

package models

import "chapel/pkg/domain"

// Source names the table a Record was read from.
type Source string

const (
	SourceAdminTable   Source = "admin_table"
	SourceProfileTable Source = "profile_table"
)

// AdminUser is a row of admin_users. Role is validated on read.
type AdminUser struct {
	ID    string
	Email string
	Name  string
	Role  domain.Role
}

// Profile is a row of profiles. A NULL or empty role reads as domain.RoleUser.
type Profile struct {
	ID       string
	Email    string
	FullName string
	Role     domain.Role
}

// Record is the resolved authorization data for one user.
type Record struct {
	ID     string
	Email  string
	Name   string
	Role   domain.Role
	Source Source
}

func (a *AdminUser) Record() *Record {
	return &Record{ID: a.ID, Email: a.Email, Name: a.Name, Role: a.Role, Source: SourceAdminTable}
}

func (p *Profile) Record() *Record {
	return &Record{ID: p.ID, Email: p.Email, Name: p.FullName, Role: p.Role, Source: SourceProfileTable}
}

package model

type Tenant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Ctime  int64  `json:"ctime"`
	Mtime  int64  `json:"mtime"`
}

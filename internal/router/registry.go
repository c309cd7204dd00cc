package router

import "github.com/gin-gonic/gin"

// Module is a feature that registers its routes on the group it is mounted on.
type Module interface {
	Register(rg *gin.RouterGroup)
}

type mount struct {
	group *gin.RouterGroup
	mod   Module
}

// Registry collects modules and mounts them in insertion order. Modules
// added with Add live under /api and share the API middleware; AddRoot
// mounts on the bare engine.
type Registry struct {
	Engine      *gin.Engine
	API         *gin.RouterGroup
	middlewares []gin.HandlerFunc
	mounts      []mount
}

func NewRegistry(engine *gin.Engine) *Registry {
	return &Registry{Engine: engine, API: engine.Group("/api")}
}

func (r *Registry) Use(mw ...gin.HandlerFunc) {
	r.middlewares = append(r.middlewares, mw...)
}

func (r *Registry) Add(mod Module) {
	r.mounts = append(r.mounts, mount{group: r.API, mod: mod})
}

// AddRoot mounts mod outside /api, e.g. /metrics for scrapers.
func (r *Registry) AddRoot(mod Module) {
	r.mounts = append(r.mounts, mount{group: &r.Engine.RouterGroup, mod: mod})
}

// RegisterAll mounts every module and returns the resulting route table.
func (r *Registry) RegisterAll() gin.RoutesInfo {
	if len(r.middlewares) > 0 {
		r.API.Use(r.middlewares...)
	}
	for _, m := range r.mounts {
		m.mod.Register(m.group)
	}
	return r.Engine.Routes()
}

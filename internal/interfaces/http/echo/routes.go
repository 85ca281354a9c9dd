package echo

import e "github.com/labstack/echo/v4"

func RegisterRoutes(server *e.Echo, importHandler *ImportHandler, auth e.MiddlewareFunc) {
	var middlewares []e.MiddlewareFunc
	if auth != nil {
		middlewares = append(middlewares, auth)
	}

	api := server.Group("/api/v1", middlewares...)
	api.POST("/imports", importHandler.StartImport)
	api.GET("/imports/:id", importHandler.GetImport)
	api.POST("/imports/:id/retry", importHandler.RetryImport)
	api.POST("/imports/:id/cancel", importHandler.CancelImport)
	api.GET("/imports/:id/rows", importHandler.ListRows)
}

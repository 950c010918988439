/*
Package diecho provides echo middleware that runs each request inside a [di.RequestScope].

Example:

	e := echo.New()

	mw, err := diecho.RequestScope(c.RequestScope())
	if err != nil {
		return err
	}
	e.Use(mw)

	e.GET("/all", func(ec echo.Context) error {
		db, err := di.Resolve(ec.Request().Context(), c, DBKey)
		if err != nil {
			return err
		}
		return ec.JSON(http.StatusOK, db.All())
	})
*/
package diecho

/*
Package di is a small dependency injection container with request scoped services.

Services are registered once with a typed [Key] and a [Provider]. A [Scoped] service is created
at most once per request, the first time it is resolved, and released when the request ends:

	var DBKey = di.NewKey[*sql.DB]("db")

	c, err := di.NewContainer(
		di.WithService(DBKey, OpenDB, di.Scoped),
	)

	rs := c.RequestScope()
	ctx = rs.Enter(ctx)
	defer rs.Exit(ctx)

	db, err := di.Resolve(ctx, c, DBKey)

Resolving a [Scoped] service outside of a request returns [ErrOutsideRequestScope].
The dihttp and diecho packages enter and exit the request scope for each HTTP request.
*/
package di

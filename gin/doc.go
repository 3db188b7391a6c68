// Package gin records X-Ray segments for gin engines.
//
//	r := gin.New()
//	r.Use(otxgin.Middleware(rec))
//	r.GET("/orders/:id", func(c *gin.Context) {
//	    otxgin.Segment(c).AddAnnotation("order", c.Param("id"))
//	    ...
//	})
//
// Errors collected with c.Error are recorded on the segment when the request
// completes. Place the middleware after gin.Recovery so a panic is recorded
// as a fault before the recovery handler writes the response.
package gin

package sierra

func (s *Session) bibsMARCEndpoint() string     { return s.bibsEndpoint + "marc" }
func (s *Session) bibsMetadataEndpoint() string { return s.bibsEndpoint + "metadata" }
func (s *Session) bibsQueryEndpoint() string    { return s.bibsEndpoint + "query" }
func (s *Session) bibsSearchEndpoint() string   { return s.bibsEndpoint + "search" }

func (s *Session) bibEndpoint(sid string) string     { return s.bibsEndpoint + sid }
func (s *Session) bibMARCEndpoint(sid string) string { return s.bibsEndpoint + sid + "/marc" }

func (s *Session) itemsCheckoutsEndpoint() string { return s.itemsEndpoint + "checkouts" }
func (s *Session) itemsQueryEndpoint() string     { return s.itemsEndpoint + "query" }

func (s *Session) itemEndpoint(sid string) string          { return s.itemsEndpoint + sid }
func (s *Session) itemCheckoutsEndpoint(sid string) string { return s.itemsEndpoint + sid + "/checkouts" }
